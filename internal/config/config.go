package config

import (
	"bytes"
	"strings"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Cfg struct {
	Server              component.Server         `mapstructure:"server"`
	AddressSpaceBackend string                   `mapstructure:"address_space_backend"`
	Simulators          []component.IoTSensor    `mapstructure:"simulators"`
	Subscriptions       []component.Subscription `mapstructure:"subscriptions"`
	Publisher           component.Publisher      `mapstructure:"publisher"`
	MQTTConfig          component.MQTTConfig     `mapstructure:"mqtt_config"`
	Kafka               component.Kafka          `mapstructure:"kafka"`
	LoggerConfig        component.Logger         `mapstructure:"logger"`
	EnablePrometheus    bool                     `mapstructure:"enable_prometheus"`
	PrometheusAddr      string                   `mapstructure:"prometheus_addr"`
}

var defaultConfig = []byte(`
{
	"server": {
		"enabled": true,
		"host": "localhost",
		"port": 46010,
		"namespace_uri": "http://github.com/amine-amaach/simulators/ioTSensorsOPCUA",
		"allow_anonymous": true,
		"users": [
			{ "username": "root", "password": "secret" }
		],
		"security_profiles": ["None", "Basic256Sha256"],
		"certificate": {
			"hosts": [],
			"ips": [],
			"pki_path": "./uaServerCerts/pki"
		}
	},

	"address_space_backend": "server",

	"simulators": [
		{
			"sensor_id": "Temperature",
			"mean": 20.0,
			"standard_deviation": 5.0,
			"delay_min": 1,
			"delay_max": 3,
			"randomize": true,
			"eu_low": -40.0,
			"eu_high": 120.0
		},
		{
			"sensor_id": "Pressure",
			"mean": 80.0,
			"standard_deviation": 7.0,
			"delay_min": 2,
			"delay_max": 4,
			"randomize": false,
			"eu_low": 0.0,
			"eu_high": 200.0
		}
	],

	"subscriptions": [
		{
			"publishing_interval": 1000,
			"sampling_tick": 100,
			"max_keep_alive_count": 10,
			"max_notifications_per_publish": 100,
			"max_queue_size": 1024,
			"retransmission_capacity": 128,
			"publishing_enabled": true,
			"monitored_items": [
				{
					"node_id": "ns=2;s=Temperature",
					"attribute_id": 13,
					"client_handle": 1,
					"monitoring_mode": "Reporting",
					"sampling_interval": 500,
					"queue_size": 10,
					"discard_oldest": true,
					"filter": { "trigger": "StatusValue", "deadband_type": "Absolute", "deadband_value": 0.5 }
				},
				{
					"node_id": "ns=2;s=Pressure",
					"attribute_id": 13,
					"client_handle": 2,
					"monitoring_mode": "Reporting",
					"sampling_interval": -1,
					"queue_size": 5,
					"discard_oldest": false,
					"filter": { "trigger": "StatusValue", "deadband_type": "Percent", "deadband_value": 2 }
				}
			]
		}
	],

	"publisher": {
		"backend": "log",
		"encoding": "json",
		"topic_prefix": "ioTSensorsOPCUA/notifications"
	},

	"mqtt_config": {
		"url": "tcp://broker.emqx.io:1883",
		"qos": 1,
		"client_id": "",
		"user": "",
		"password": "",
		"keep_alive": 5,
		"connect_timeout": "30s",
		"connect_retry": 3,
		"clean_start": true,
		"session_expiry_interval": 60
	},

	"kafka": {
		"brokers": ["localhost:9092"]
	},

	"logger": {
		"level": "INFO",
		"format": "TEXT",
		"disable_timestamp": false
	},

	"enable_prometheus": true,
	"prometheus_addr": ":8080"
}
`)

// Flags returns the command line flags understood by GetConfigs.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ioTSensorsOPCUA", pflag.ContinueOnError)
	fs.String("config", "", "path to a JSON config file")
	fs.String("logger.level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	fs.String("publisher.backend", "", "notification publisher (log, mqtt, kafka)")
	return fs
}

// GetConfigs reads the configuration and panics if it cannot be used,
// the same way the other simulators in this repository bootstrap.
func GetConfigs(args []string) Cfg {
	logger := logrus.New()
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		logger.Errorln("Unable to parse command line flags ⛔")
		panic(err)
	}
	cfg, err := Load(viper.New(), fs, logger)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves the configuration: defaults, then the config file, then
// UASIM_* environment variables, then explicitly set flags.
func Load(v *viper.Viper, fs *pflag.FlagSet, logger logrus.FieldLogger) (Cfg, error) {
	var configs Cfg

	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		logger.Errorln("Error reading default configs ⛔")
		return configs, errors.Wrap(err, "read default config")
	}

	v.SetEnvPrefix("UASIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")             // name of config file (without extension)
		v.AddConfigPath("./configs/")         // look for config in the working directory
		v.AddConfigPath("./internal/config/") // look for config in the working directory
		v.AddConfigPath("/configs/")
	}

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFile == "" {
			logger.Warnln("Config file not found! using default configs 🔔")
		} else {
			logger.Errorln("Config file was found but another error was produced ⛔")
			return configs, errors.Wrap(err, "read config file")
		}
	} else {
		logger.WithField("File", v.ConfigFileUsed()).Infoln("Config file found")
	}

	if fs != nil {
		for _, name := range []string{"logger.level", "publisher.backend"} {
			if f := fs.Lookup(name); f != nil && f.Changed {
				v.Set(name, f.Value.String())
			}
		}
	}

	if err := v.Unmarshal(&configs); err != nil {
		logger.Errorln("Unable to unmarshal configs ⛔")
		return configs, errors.Wrap(err, "unmarshal config")
	}
	logger.Infoln("Configs parsed successfully ✅")
	return configs, nil
}
