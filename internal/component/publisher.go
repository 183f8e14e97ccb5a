package component

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
}

type Publisher struct {
	// log, mqtt or kafka
	Backend string `mapstructure:"backend"`
	// json, protobuf or cbor
	Encoding    string `mapstructure:"encoding"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}
