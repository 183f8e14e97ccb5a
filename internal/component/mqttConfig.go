package component

type MQTTConfig struct {
	URL                   string `mapstructure:"url"`
	QoS                   uint8  `mapstructure:"qos"`
	ClientID              string `mapstructure:"client_id"`
	CleanStart            bool   `mapstructure:"clean_start"`
	SessionExpiryInterval uint32 `mapstructure:"session_expiry_interval"`
	User                  string `mapstructure:"user"`
	Password              string `mapstructure:"password"`
	ConnectTimeout        string `mapstructure:"connect_timeout"`
	KeepAlive             uint16 `mapstructure:"keep_alive"`
	// How long to wait between connection attempts, in seconds
	ConnectRetry int64 `mapstructure:"connect_retry"`
}

// Returns default configs
func NewMQTTConfig() *MQTTConfig {
	return &MQTTConfig{
		URL:                   "tcp://localhost:1883",
		QoS:                   1,
		ClientID:              "",
		CleanStart:            true,
		SessionExpiryInterval: 60,
		User:                  "",
		Password:              "",
		ConnectTimeout:        "10s",
		KeepAlive:             10,
		ConnectRetry:          5,
	}
}
