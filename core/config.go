package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

type (
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server     ServerConfig
		Database   DatabaseConfig
		Firestore  FirestoreConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ScanSessionTTL            time.Duration
	}

	DatabaseConfig struct {
		Driver        string // postgres | firestore | memory
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	FirestoreConfig struct {
		ProjectID       string
		CredentialsFile string
	}

	AttendanceConfig struct {
		Timezone             string
		DefaultPresentRating int
		AutoCloseSchedule    string   // cron spec; empty disables the scheduler
		ReportRecipients     []string // closure summary recipients
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (dbc DatabaseConfig) Address() string {
	return dbc.Host + ":" + dbc.Port
}

// Location returns the attendance time zone, falling back to UTC.
func (ac AttendanceConfig) Location() *time.Location {
	if ac.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(ac.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Attendify")
	conf.SetDefault("secretKey", "k2r0-tyb!aq7=pu&xw3e(l1n)#*d9(#za^$vmm4p8")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddress", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("scanSessionTTL", 5*time.Minute)
	conf.SetDefault("dbDriver", DriverPostgres)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "attendify")
	conf.SetDefault("dbUser", "attendify")
	conf.SetDefault("dbPassword", "attendify")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("attendanceTimezone", "UTC")
	conf.SetDefault("attendanceDefaultPresentRating", 10)
	conf.SetDefault("attendanceAutoCloseSchedule", "")
	conf.SetDefault("attendanceReportRecipients", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("dbDriver", DriverMemory)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		AppName:          conf.GetString("appName"),
		SecretKey:        conf.GetString("secretKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Address:                   conf.GetString("serverAddress"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			ScanSessionTTL:            conf.GetDuration("scanSessionTTL"),
		},
		Database: DatabaseConfig{
			Driver:        conf.GetString("dbDriver"),
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       conf.GetString("firestoreProjectID"),
			CredentialsFile: conf.GetString("firestoreCredentialsFile"),
		},
		Attendance: AttendanceConfig{
			Timezone:             conf.GetString("attendanceTimezone"),
			DefaultPresentRating: conf.GetInt("attendanceDefaultPresentRating"),
			AutoCloseSchedule:    conf.GetString("attendanceAutoCloseSchedule"),
			ReportRecipients:     splitList(conf.GetString("attendanceReportRecipients")),
		},
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
