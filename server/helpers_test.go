package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/agent/scripted"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/storage/inmemory"
	"github.com/papercomputeco/skycast/pkg/weather"
)

var errModelOffline = errors.New("model offline")

// parisLookup reports the same conditions for every location.
type parisLookup struct{}

func (parisLookup) Lookup(_ context.Context, location string) (*weather.Conditions, error) {
	return &weather.Conditions{
		Location:    location,
		Temperature: 21.5,
		FeelsLike:   21,
		Humidity:    40,
		WindSpeed:   8,
		WindGust:    15,
		Code:        0,
		Conditions:  weather.ConditionName(0),
	}, nil
}

func newTestRegistry() *agent.Registry {
	return agent.NewRegistry(
		scripted.New(scripted.WithName("weatherAgent"), scripted.WithFragments("It's ", "sunny ", "in Paris.")),
		scripted.New(scripted.WithName("broken"), scripted.WithFailure(0, errModelOffline)),
		scripted.New(scripted.WithName("flaky"), scripted.WithFragments("It's ", "sunny "), scripted.WithFailure(1, errors.New("upstream reset"))),
		scripted.New(scripted.WithName("reporter"), scripted.WithWeather(parisLookup{})),
		scripted.New(scripted.WithName("rambler"), scripted.WithFragments("not ", "json")),
		scripted.New(scripted.WithName("silent"), scripted.WithFragments()),
	)
}

// newTestServer creates a Server backed by an in-memory driver and the test
// registry, with weatherAgent as the default agent.
func newTestServer() (*Server, *inmemory.Driver) {
	driver := inmemory.NewDriver()

	s, err := New(Config{
		ListenAddr: ":0",
		AgentName:  "weatherAgent",
		Registry:   newTestRegistry(),
		Driver:     driver,
	}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())

	return s, driver
}

func jsonRequest(method, target string, body any) *http.Request {
	buf, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	req := httptest.NewRequest(method, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withAgent(req *http.Request, name string) *http.Request {
	req.Header.Set(AgentNameHeader, name)
	return req
}

// do runs req through the app in-process and decodes the JSON reply into out.
func do(s *Server, req *http.Request, out any) int {
	resp, err := s.server.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if out != nil {
		Expect(json.Unmarshal(body, out)).To(Succeed(), string(body))
	}
	return resp.StatusCode
}

// recordedTurns waits for n turns to be recorded and returns them, newest
// first.
func recordedTurns(driver *inmemory.Driver, n int) []*storage.Turn {
	var turns []*storage.Turn
	Eventually(func() ([]*storage.Turn, error) {
		var err error
		turns, err = driver.List(context.Background(), storage.ListOptions{})
		return turns, err
	}).WithTimeout(2 * time.Second).Should(HaveLen(n))
	return turns
}
