package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/ndmitriev/payhub/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultPayrollAddr   = "http://localhost:3000"
	defaultEnvironment   = logger.EnvProduction
	defaultMinWithdrawal = "1"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the payhub service will be run
	ListenAddr string

	// Payroll service address: the source of staff earnings
	PayrollAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key shared with the auth subsystem for verifying actor tokens
	SecretKey string

	// Environment
	Environment string

	// Smallest amount an applicant may request, as a decimal string.
	// "0" disables the rule.
	MinWithdrawal string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		PayrollAddr:   defaultPayrollAddr,
		Environment:   defaultEnvironment,
		MinWithdrawal: defaultMinWithdrawal,
	}
}

// MinAmount parses MinWithdrawal. Call after loading; invalid input is a
// startup error.
func (c *Config) MinAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(c.MinWithdrawal)
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"DATABASE_URI":    setString(&c.DatabaseDSN),
		"SECRET_KEY":      setString(&c.SecretKey),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"PAYROLL_ADDRESS": setString(&c.PayrollAddr),
		"ENVIRONMENT":     setString(&c.Environment),
		"MIN_WITHDRAWAL":  setString(&c.MinWithdrawal),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("payhub", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.PayrollAddr, "payroll", "r", c.PayrollAddr, "Payroll service address")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, production)")
	fs.StringVarP(&c.MinWithdrawal, "min-withdrawal", "m", c.MinWithdrawal, "Minimum withdrawal amount, 0 disables")

	return fs.Parse(args)
}
