package component

type DataChangeFilter struct {
	// Status, StatusValue or StatusValueTimestamp
	Trigger string `mapstructure:"trigger"`
	// None, Absolute or Percent
	DeadbandType  string  `mapstructure:"deadband_type"`
	DeadbandValue float64 `mapstructure:"deadband_value"`
}

type MonitoredItem struct {
	NodeId           string           `mapstructure:"node_id"`
	AttributeId      uint32           `mapstructure:"attribute_id"`
	ClientHandle     uint32           `mapstructure:"client_handle"`
	MonitoringMode   string           `mapstructure:"monitoring_mode"`
	SamplingInterval float64          `mapstructure:"sampling_interval"`
	QueueSize        uint32           `mapstructure:"queue_size"`
	DiscardOldest    bool             `mapstructure:"discard_oldest"`
	Filter           DataChangeFilter `mapstructure:"filter"`
}

type Subscription struct {
	// Milliseconds
	PublishingInterval         float64         `mapstructure:"publishing_interval"`
	SamplingTick               float64         `mapstructure:"sampling_tick"`
	MaxKeepAliveCount          uint32          `mapstructure:"max_keep_alive_count"`
	MaxNotificationsPerPublish uint32          `mapstructure:"max_notifications_per_publish"`
	MaxQueueSize               uint32          `mapstructure:"max_queue_size"`
	RetransmissionCapacity     uint64          `mapstructure:"retransmission_capacity"`
	PublishingEnabled          bool            `mapstructure:"publishing_enabled"`
	MonitoredItems             []MonitoredItem `mapstructure:"monitored_items"`
}
