package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	PayTech struct {
		BaseURL    string `mapstructure:"baseUrl"`
		APIKey     string `mapstructure:"apiKey"`
		APISecret  string `mapstructure:"apiSecret"`
		IPNURL     string `mapstructure:"ipnUrl"`
		SuccessURL string `mapstructure:"successUrl"`
		CancelURL  string `mapstructure:"cancelUrl"`
		Env        string `mapstructure:"env"`
	} `mapstructure:"paytech"`
	CinetPay struct {
		BaseURL   string `mapstructure:"baseUrl"`
		APIKey    string `mapstructure:"apiKey"`
		SiteID    string `mapstructure:"siteId"`
		SecretKey string `mapstructure:"secretKey"`
		NotifyURL string `mapstructure:"notifyUrl"`
		ReturnURL string `mapstructure:"returnUrl"`
	} `mapstructure:"cinetpay"`
	Sweeper struct {
		Interval   time.Duration `mapstructure:"interval"`
		WarnWindow time.Duration `mapstructure:"warnWindow"`
	} `mapstructure:"sweeper"`
	Notifications struct {
		QueueSize int `mapstructure:"queueSize"`
	} `mapstructure:"notifications"`
}

// LoadConfig loads configuration from the config file and environment
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// A missing .env file is fine in development
		_ = godotenv.Load(path)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.env", "development")
	viper.SetDefault("paytech.baseUrl", "https://paytech.sn")
	viper.SetDefault("paytech.env", "test")
	viper.SetDefault("cinetpay.baseUrl", "https://api-checkout.cinetpay.com")
	viper.SetDefault("sweeper.interval", time.Hour)
	viper.SetDefault("sweeper.warnWindow", 72*time.Hour)
	viper.SetDefault("notifications.queueSize", 128)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file, run on defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
