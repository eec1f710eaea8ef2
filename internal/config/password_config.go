package config

// PasswordConfig exposes the toggles of the password policy so requirements change without code changes
type PasswordConfig interface {
	GetPasswordMinLength() int
	GetPasswordMaxLength() int
	GetPasswordRequireUppercase() bool
	GetPasswordRequireLowercase() bool
	GetPasswordRequireNumbers() bool
	GetPasswordRequireSpecialChars() bool
	GetPasswordMaxRepeatingChars() int
	GetPasswordPreventCommon() bool
}

var _ PasswordConfig = mainConfig{}

func (c mainConfig) GetPasswordMinLength() int { return c.s.PasswordMinLength }
func (c mainConfig) GetPasswordMaxLength() int { return c.s.PasswordMaxLength }
func (c mainConfig) GetPasswordRequireUppercase() bool { return c.s.PasswordRequireUpper }
func (c mainConfig) GetPasswordRequireLowercase() bool { return c.s.PasswordRequireLower }
func (c mainConfig) GetPasswordRequireNumbers() bool { return c.s.PasswordRequireNumbers }
func (c mainConfig) GetPasswordRequireSpecialChars() bool {
	return c.s.PasswordRequireSpecial
}
func (c mainConfig) GetPasswordMaxRepeatingChars() int { return c.s.PasswordMaxRepeating }
func (c mainConfig) GetPasswordPreventCommon() bool { return c.s.PasswordPreventCommon }
