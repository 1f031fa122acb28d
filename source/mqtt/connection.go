package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
)

const defaultConnectTimeout = 30 * time.Second

// buildClient constructs a configured MQTT client and establishes the initial connection.
func buildClient(settings config.MQTTConfig, logger zerolog.Logger, onConnect mqtt.OnConnectHandler) (mqtt.Client, error) {
	if settings.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	if settings.ClientID != "" {
		opts.SetClientID(settings.ClientID)
	}
	if settings.CleanSession != nil {
		opts.SetCleanSession(*settings.CleanSession)
	}
	if settings.Auth != nil {
		opts.SetUsername(settings.Auth.Username)
		opts.SetPassword(settings.Auth.Password)
	}
	if settings.KeepAlive.Duration > 0 {
		opts.SetKeepAlive(settings.KeepAlive.Duration)
	}
	timeout := defaultConnectTimeout
	if settings.ConnectTimeout.Duration > 0 {
		timeout = settings.ConnectTimeout.Duration
	}
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)

	if settings.TLS != nil && settings.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(*settings.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	if onConnect != nil {
		opts.SetOnConnectHandler(onConnect)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt: connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt: reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}
	return client, nil
}

func buildTLSConfig(settings config.MQTTTLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: settings.InsecureSkipVerify}
	if settings.ServerName != "" {
		cfg.ServerName = settings.ServerName
	}

	if settings.CAFile != "" {
		ca, err := os.ReadFile(settings.CAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("mqtt: parse ca file %s", settings.CAFile)
		}
		cfg.RootCAs = pool
	}

	if settings.CertFile != "" && settings.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
