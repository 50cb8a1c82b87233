package env

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

func (e Environment) IsProduction() bool { return e == Production }

// SecureCookies reports whether cookies must carry the Secure attribute.
func (e Environment) SecureCookies() bool { return e.IsProduction() }
