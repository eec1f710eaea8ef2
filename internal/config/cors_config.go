package config

var _ CorsConfig = mainConfig{}

// GetAppOrigin is the single origin allowed to call the API cross-origin
func (c mainConfig) GetAppOrigin() string {
	return c.s.AppOrigin
}

func (mainConfig) GetAllowedMethods() string {
	return "GET, POST, PUT, DELETE, OPTIONS"
}

func (mainConfig) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
