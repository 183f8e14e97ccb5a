package component

type UserId struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Certificate struct {
	AdditionalHosts []string `mapstructure:"hosts"`
	AdditionalIPs   []string `mapstructure:"ips"`
	// Directory holding server.crt and server.key
	PKIPath string `mapstructure:"pki_path"`
}

type Server struct {
	Enabled          bool        `mapstructure:"enabled"`
	Host             string      `mapstructure:"host"`
	Port             int         `mapstructure:"port"`
	NamespaceURI     string      `mapstructure:"namespace_uri"`
	AllowAnonymous   bool        `mapstructure:"allow_anonymous"`
	Users            []UserId    `mapstructure:"users"`
	SecurityProfiles []string    `mapstructure:"security_profiles"`
	Certificate      Certificate `mapstructure:"certificate"`
}
