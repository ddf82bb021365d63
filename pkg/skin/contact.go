package skin

// ComputeContacts evaluates the contact and contact-transition flags of
// every finger from the current calibrated values.
func (s *Skin) ComputeContacts() {
	for _, f := range s.fingers {
		maxCal, _ := f.maxCalibrated()
		f.InContact = maxCal > f.ContactThreshold()

		maxDer, _ := f.maxDerivative()
		f.ContactChanged = maxDer > f.DerivativeThreshold()
	}
}
