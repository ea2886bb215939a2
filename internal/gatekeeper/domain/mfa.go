package domain

// MFAEnrollment is returned when TOTP enrollment starts.
type MFAEnrollment struct {
	ManualKey string // base32 secret for manual entry
	QRPayload string // otpauth:// URL
	QRCodePNG string // base64 PNG of QRPayload
	Issuer    string
	Account   string
}
