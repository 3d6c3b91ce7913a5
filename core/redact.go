package core

// RedactSettings returns a copy of s without the secret fields declared by its type.
// The argument is never modified.
func RedactSettings(s *AdminSettings) *AdminSettings {
	if s == nil {
		return nil
	}
	out := s.Clone()
	if fields := s.Type().SecretFields(); len(fields) > 0 {
		out.JSONValue = s.JSONValue.Without(fields...)
	}
	return out
}

// RedactUser returns a copy of u without password history.
func RedactUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := u.Clone()
	if out.AdditionalInfo != nil {
		delete(out.AdditionalInfo, UserPasswordHistoryField)
	}
	return out
}
