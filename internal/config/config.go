package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sim31/fractalgram/internal/models"
)

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type MongoConfig struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Pass   string `mapstructure:"password"`
	DB     int    `mapstructure:"db"`
	Prefix string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicEvents string   `mapstructure:"topic_events"`
	TopicSend   string   `mapstructure:"topic_send"`
	GroupID     string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type ConsensusConfig struct {
	PlatformsFile     string `mapstructure:"platforms_file"`
	ResultsTTLSeconds int    `mapstructure:"results_ttl_seconds"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Consensus ConsensusConfig `mapstructure:"consensus"`

	// derived
	ResultsTTL time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.TopicEvents == "" {
		c.Kafka.TopicEvents = "chat.message.events"
	}
	if c.Kafka.TopicSend == "" {
		c.Kafka.TopicSend = "chat.message.send"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "consensus-service"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "consensus"
	}
	if c.Consensus.PlatformsFile == "" {
		c.Consensus.PlatformsFile = "platforms.yaml"
	}
	if c.Consensus.ResultsTTLSeconds == 0 {
		c.Consensus.ResultsTTLSeconds = 60
	}
	c.ResultsTTL = time.Duration(c.Consensus.ResultsTTLSeconds) * time.Second
	return &c, nil
}

// LoadPlatforms reads the external platform presets offered during report
// composition. Presets are keyed by name; names must be unique.
func (c *Config) LoadPlatforms() (map[string]models.ExtPlatformInfo, error) {
	raw, err := os.ReadFile(c.Consensus.PlatformsFile)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Platforms []models.ExtPlatformInfo `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]models.ExtPlatformInfo, len(doc.Platforms))
	for _, p := range doc.Platforms {
		if p.Name == "" {
			return nil, fmt.Errorf("platform preset without a name")
		}
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("duplicate platform preset %q", p.Name)
		}
		out[p.Name] = p
	}
	return out, nil
}
