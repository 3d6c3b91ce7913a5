package core

// UserPasswordPolicy constrains administrator passwords.
type UserPasswordPolicy struct {
	MinimumLength                int  `json:"minimumLength" validate:"gte=6,lte=128"`
	MaximumLength                int  `json:"maximumLength,omitempty" validate:"omitempty,gtefield=MinimumLength,lte=128"`
	MinimumUppercaseLetters      int  `json:"minimumUppercaseLetters" validate:"gte=0"`
	MinimumLowercaseLetters      int  `json:"minimumLowercaseLetters" validate:"gte=0"`
	MinimumDigits                int  `json:"minimumDigits" validate:"gte=0"`
	MinimumSpecialCharacters     int  `json:"minimumSpecialCharacters" validate:"gte=0"`
	PasswordExpirationPeriodDays int  `json:"passwordExpirationPeriodDays" validate:"gte=0"`
	PasswordReuseFrequencyDays   int  `json:"passwordReuseFrequencyDays" validate:"gte=0"`
	AllowWhitespaces             bool `json:"allowWhitespaces"`
}

// SecuritySettings is the authentication policy. It is stored as its own record and
// never passes through settings type dispatch.
type SecuritySettings struct {
	PasswordPolicy               UserPasswordPolicy `json:"passwordPolicy" validate:"required"`
	MaxFailedLoginAttempts       int                `json:"maxFailedLoginAttempts" validate:"gte=0"`
	UserLockoutNotificationEmail string             `json:"userLockoutNotificationEmail,omitempty" validate:"omitempty,email"`
}

// DefaultSecuritySettings is returned when no policy has been saved yet.
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		PasswordPolicy: UserPasswordPolicy{
			MinimumLength: 6,
		},
		MaxFailedLoginAttempts: 0,
	}
}
