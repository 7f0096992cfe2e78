// Package servertest runs a skycast server on a loopback listener for tests
// of its clients.
package servertest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/agent/scripted"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage/inmemory"
	"github.com/papercomputeco/skycast/pkg/weather"
	"github.com/papercomputeco/skycast/server"
)

// DefaultAgent is the default agent of Registry.
const DefaultAgent = "weatherAgent"

// Server is a running server backed by an in-memory driver.
type Server struct {
	URL    string
	Driver *inmemory.Driver

	srv *server.Server
}

// FixedLookup reports mild, clear conditions for every location.
type FixedLookup struct{}

func (FixedLookup) Lookup(_ context.Context, location string) (*weather.Conditions, error) {
	return &weather.Conditions{
		Location:    location,
		Temperature: 21.5,
		FeelsLike:   21,
		Humidity:    40,
		WindSpeed:   8,
		WindGust:    15,
		Conditions:  weather.ConditionName(0),
	}, nil
}

// Registry returns scripted agents covering the client-visible behaviors:
//
//	weatherAgent  streams "It's sunny in Paris." in three fragments
//	flaky         fails after its first fragment
//	reporter      answers from FixedLookup, including structured reports
func Registry() *agent.Registry {
	return agent.NewRegistry(
		scripted.New(scripted.WithName(DefaultAgent), scripted.WithFragments("It's ", "sunny ", "in Paris.")),
		scripted.New(scripted.WithName("flaky"), scripted.WithFragments("It's ", "sunny "), scripted.WithFailure(1, errors.New("upstream reset"))),
		scripted.New(scripted.WithName("reporter"), scripted.WithWeather(FixedLookup{})),
	)
}

// Start serves registry on 127.0.0.1 with DefaultAgent as the default and
// waits until /ping answers.
func Start(registry *agent.Registry) (*Server, error) {
	driver := inmemory.NewDriver()

	srv, err := server.New(server.Config{
		AgentName: DefaultAgent,
		Registry:  registry,
		Driver:    driver,
	}, logger.Nop())
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	go func() {
		_ = srv.RunWithListener(listener)
	}()

	s := &Server{
		URL:    "http://" + listener.Addr().String(),
		Driver: driver,
		srv:    srv,
	}
	if err := s.waitReady(5 * time.Second); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := http.Get(s.URL + "/ping")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server at %s not ready: %w", s.URL, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops the server and flushes queued turns.
func (s *Server) Close() error {
	return s.srv.Close()
}
