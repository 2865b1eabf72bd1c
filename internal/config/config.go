package config

import "time"

type Config struct {
	Monitor      MonitorConfig `yaml:"monitor"`
	Notify       NotifyConfig  `yaml:"notify"`
	History      HistoryConfig `yaml:"history"`
	Logging      LoggingConfig `yaml:"logging"`
	ConfigReload ReloadConfig  `yaml:"configReload"`
}

type MonitorConfig struct {
	Paths           []string      `yaml:"paths"`
	Schedule        string        `yaml:"schedule"`      // standard 5-field cron
	MinFreeGB       float64       `yaml:"minFreeGB"`     // threshold per volume
	BufferPercent   float64       `yaml:"bufferPercent"` // added on top of the threshold
	DeletionDelay   time.Duration `yaml:"deletionDelay"` // e.g. 6h
	ScanConcurrency int           `yaml:"scanConcurrency"`
}

type NotifyConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

type SMTPConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	To       []string      `yaml:"to"`
	TLS      string        `yaml:"tls"` // "mandatory", "opportunistic", "none"
	Timeout  time.Duration `yaml:"timeout"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. tcp://127.0.0.1:1883
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables the history store
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info", "debug", etc.
	Format string `yaml:"format"` // "json", "text"
}

type ReloadConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Method       string        `yaml:"method"` // "auto", "fsnotify", "poll"
	PollInterval time.Duration `yaml:"pollInterval"`
	Debounce     time.Duration `yaml:"debounce"`
}

const bytesPerGB = 1 << 30

// MinFreeBytes converts the GB threshold into bytes.
func (m MonitorConfig) MinFreeBytes() uint64 {
	return uint64(m.MinFreeGB * bytesPerGB)
}
