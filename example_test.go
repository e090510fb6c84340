package settings_test

import (
	"fmt"

	"github.com/lixenwraith/settings"
)

type ServerSettings struct {
	Host string `setting:"server.host" default:"localhost"`
	Port int    `setting:"server.port" default:"8080"`
}

func (ServerSettings) Addr(s *settings.Instance) (string, error) {
	host, err := s.String("Host")
	if err != nil {
		return "", err
	}
	port, err := s.Int64("Port")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

var serverClass = settings.NewBuilder().
	WithShape(ServerSettings{}).
	WithDefaultRetrievers(settings.MapRetriever{"server.port": "9000"}).
	MustBuild()

func Example() {
	m := settings.NewManager()
	server := m.Proxy(serverClass)

	addr, _ := server.String("Addr")
	fmt.Println(addr)

	_ = m.Override(serverClass, map[string]any{"Host": "10.0.0.1"}, func(*settings.Instance) error {
		addr, _ := server.String("Addr")
		fmt.Println(addr)
		return nil
	})

	addr, _ = server.String("Addr")
	fmt.Println(addr)
	// Output:
	// localhost:9000
	// 10.0.0.1:9000
	// localhost:9000
}

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
)

func (l LogLevel) String() string {
	return [...]string{"debug", "info", "warn"}[l]
}

type LogSettings struct {
	Level LogLevel `default:"info"`
}

var logClass = settings.NewBuilder().
	WithShape(LogSettings{}).
	WithField("Level", settings.WithConverter(settings.Enum(LevelDebug, LevelInfo, LevelWarn))).
	MustBuild()

func ExampleEnum() {
	s := settings.NewManager().Current(logClass)

	level, _ := settings.Value[LogLevel](s, "Level")
	fmt.Println(level)

	s.Set("Level", 2)
	level, _ = settings.Value[LogLevel](s, "Level")
	fmt.Println(level)

	s.Set("Level", "loud")
	_, err := s.Get("Level")
	fmt.Println(err != nil)
	// Output:
	// info
	// warn
	// true
}
