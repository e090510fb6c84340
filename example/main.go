package main

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lixenwraith/settings"
)

// DatabaseSettings is resolved from APP_* environment variables and an
// optional app.toml.
type DatabaseSettings struct {
	Host     string        `setting:"database.host" default:"localhost"`
	Port     int           `setting:"database.port" default:"5432"`
	Timeout  time.Duration `setting:"database.timeout" default:"5s"`
	Password string        `setting:"database.password,optional"`
}

// DSN is a computed, read-only field.
func (DatabaseSettings) DSN(s *settings.Instance) (string, error) {
	host, err := s.String("Host")
	if err != nil {
		return "", err
	}
	port, err := s.Int64("Port")
	if err != nil {
		return "", err
	}
	return "postgres://" + host + ":" + strconv.FormatInt(port, 10) + "/app", nil
}

// BillingSettings forwards its database host to DatabaseSettings.
type BillingSettings struct {
	Rate   decimal.Decimal `default:"0.15"`
	DBHost any
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	flags := settings.NewFlagRetriever(nil)
	database := settings.NewBuilder().
		WithShape(DatabaseSettings{}).
		WithDefaultRetrievers(settings.Standard("app", "APP_", flags)).
		WithLogger(log).
		MustBuild()

	fs := database.FlagSet("app")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}
	flags.Flags = fs

	billing := settings.NewBuilder().
		WithShape(BillingSettings{}).
		WithField("DBHost", settings.Default(database.Ref("Host"))).
		WithLogger(log).
		MustBuild()

	dsn, err := database.Current().String("DSN")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot resolve database settings")
	}
	log.Info().Str("dsn", dsn).Msg("database configured")

	proxy := billing.Proxy()
	err = database.Override(map[string]any{"Host": "replica.internal"}, func(*settings.Instance) error {
		host, err := proxy.String("DBHost")
		if err != nil {
			return err
		}
		rate, err := settings.Value[decimal.Decimal](proxy, "Rate")
		if err != nil {
			return err
		}
		log.Info().Str("host", host).Str("rate", rate.String()).Msg("billing inside override")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("override failed")
	}

	if err := database.Current().Dump(os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("dump failed")
	}
}
