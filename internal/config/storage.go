package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig returns the driver configuration for the mysql driver.
// clientFoundRows is always on so update counts include rows matched but not
// changed, and parseTime is on so timestamps scan as time.Time.
func (s *StorageConfig) MySQLConfig() (*mysql.Config, error) {
	var cfg *mysql.Config
	if s.DSN != "" {
		parsed, err := mysql.ParseDSN(s.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid storage.dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = s.User
		cfg.Passwd = s.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
		cfg.DBName = s.Database
		if s.TLSMode != "" && s.TLSMode != "off" {
			cfg.TLSConfig = s.TLSMode
		}
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// FormatDSN renders MySQLConfig as a DSN string.
func (s *StorageConfig) FormatDSN() (string, error) {
	cfg, err := s.MySQLConfig()
	if err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}
