package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/angas/spotprice/tariff"
)

type AppConfigTopic struct {
	Topic  string
	Qos    byte
	Retain bool
}

type AppConfigTopics struct {
	Pub       *AppConfigTopic
	Available *AppConfigTopic
}

type AppConfigSubscription struct {
	Topic string
	// Field of the JSON payload holding the exchange rate.
	Key string
}

type AppConfigDevice struct {
	Id   string
	Name string
	Key  string
}

type AppConfigPeriod struct {
	From int
	Cost float64
}

// AppConfigTransferCost is either a high window given by start and end
// hour, or explicit periods. Costs are in hundredths of currency per kWh.
type AppConfigTransferCost struct {
	High    float64
	Low     float64
	Start   *int
	End     *int
	Periods []AppConfigPeriod
	// "mon", "tue", ... default: monday to friday
	Weekdays []string
	// 1-12, default: all year
	Months []int
}

type AppConfigSource struct {
	Name     string `mapstructure:"-"`
	Type     string
	Disabled bool
	// Bidding zone, e.g. "SE3"
	Area string

	// How often prices are refreshed, default: 4h
	UpdatePeriod *time.Duration `mapstructure:"update_period"`
	// Max age of cached prices used instead of fetching, default: 6h
	CachePeriod *time.Duration `mapstructure:"cache_period"`
	// Sleep between successful publishes, default: 5m
	ExecutionPeriod *time.Duration `mapstructure:"execution_period"`
	// Sleep after a failed run, default: 5m
	RetryPeriod *time.Duration `mapstructure:"retry_period"`

	Cache        *string
	DefaultPrice *float64 `mapstructure:"default_price"`
	// Working currency of published prices, default: SEK
	Currency *string
	// Used until a rate arrives on the subscription, default: 11.5
	ExchangeRate *float64 `mapstructure:"exchange_rate"`
	// Offset of future_price, default: 12
	FutureHours *int `mapstructure:"future_hours"`

	ApiKey  *string `mapstructure:"api_key"`
	HomeId  string  `mapstructure:"home_id"`
	BaseUrl string  `mapstructure:"base_url"`
	// Directory of 1-wire devices, default: /sys/bus/w1/devices
	W1Dir string `mapstructure:"w1_dir"`

	TransferCost *AppConfigTransferCost `mapstructure:"transfer_cost"`
	SpotAddition float64                `mapstructure:"spot_addition"`
	EnergyTax    float64                `mapstructure:"energy_tax"`

	Subscription *AppConfigSubscription
	Topics       AppConfigTopics
	Devices      []AppConfigDevice
}

func (s AppConfigSource) GetUpdatePeriod() time.Duration {
	return durationOr(s.UpdatePeriod, 4*time.Hour)
}

func (s AppConfigSource) GetCachePeriod() time.Duration {
	return durationOr(s.CachePeriod, 6*time.Hour)
}

func (s AppConfigSource) GetExecutionPeriod() time.Duration {
	return durationOr(s.ExecutionPeriod, 5*time.Minute)
}

func (s AppConfigSource) GetRetryPeriod() time.Duration {
	return durationOr(s.RetryPeriod, 5*time.Minute)
}

func (s AppConfigSource) GetCache() string {
	if s.Cache == nil || *s.Cache == "" {
		return fmt.Sprintf("db/%s.json", s.Name)
	}
	return *s.Cache
}

func (s AppConfigSource) GetDefaultPrice() float64 {
	if s.DefaultPrice == nil {
		return 1000
	}
	return *s.DefaultPrice
}

func (s AppConfigSource) GetCurrency() string {
	if s.Currency == nil || *s.Currency == "" {
		return "SEK"
	}
	return strings.ToUpper(*s.Currency)
}

func (s AppConfigSource) GetExchangeRate() float64 {
	if s.ExchangeRate == nil || *s.ExchangeRate <= 0 {
		return 11.5
	}
	return *s.ExchangeRate
}

func (s AppConfigSource) GetFutureOffset() time.Duration {
	if s.FutureHours == nil {
		return 12 * time.Hour
	}
	return time.Duration(*s.FutureHours) * time.Hour
}

// GetApiKey falls back to the environment variable of the source type.
func (s AppConfigSource) GetApiKey() string {
	if s.ApiKey != nil && *s.ApiKey != "" {
		return *s.ApiKey
	}
	if env, ok := apiKeyEnv[s.Type]; ok {
		return os.Getenv(env)
	}
	return ""
}

func (s AppConfigSource) GetPubTopic() AppConfigTopic {
	if s.Topics.Pub == nil || s.Topics.Pub.Topic == "" {
		return AppConfigTopic{Topic: "spotprice/" + s.Name}
	}
	return *s.Topics.Pub
}

func (s AppConfigSource) GetAvailableTopic() AppConfigTopic {
	if s.Topics.Available == nil || s.Topics.Available.Topic == "" {
		return AppConfigTopic{Topic: "spotprice/" + s.Name + "/available", Retain: true}
	}
	return *s.Topics.Available
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// GetSchedule converts the tariff settings. It returns nil when nothing is
// configured, giving a tariff that adds nothing.
func (s AppConfigSource) GetSchedule() (*tariff.Schedule, error) {
	tc := s.TransferCost
	if tc == nil && s.SpotAddition == 0 && s.EnergyTax == 0 {
		return nil, nil
	}

	sched := &tariff.Schedule{
		Periods:   []tariff.Period{{From: 0, Cost: 0}},
		Surcharge: s.SpotAddition,
		EnergyTax: s.EnergyTax,
	}
	if tc == nil {
		return sched, nil
	}

	sched.Low = tc.Low
	switch {
	case len(tc.Periods) > 0:
		sched.Periods = make([]tariff.Period, len(tc.Periods))
		for i, p := range tc.Periods {
			sched.Periods[i] = tariff.Period{From: p.From, Cost: p.Cost}
		}
	case tc.Start != nil && tc.End != nil:
		if *tc.Start < 0 || *tc.End <= *tc.Start || *tc.End > 24 {
			return nil, fmt.Errorf("source %s: invalid transfer cost window %d-%d", s.Name, *tc.Start, *tc.End)
		}
		sched.Periods = tariff.HighLow(*tc.Start, *tc.End, tc.High, tc.Low)
		if *tc.End == 24 {
			sched.Periods = sched.Periods[:2]
		}
		if *tc.Start == 0 {
			sched.Periods = sched.Periods[1:]
		}
	default:
		sched.Periods = []tariff.Period{{From: 0, Cost: tc.High}}
	}

	for _, d := range tc.Weekdays {
		wd, ok := weekdays[strings.ToLower(d)[:min(3, len(d))]]
		if !ok {
			return nil, fmt.Errorf("source %s: unknown weekday %q", s.Name, d)
		}
		sched.Weekdays = append(sched.Weekdays, wd)
	}
	for _, m := range tc.Months {
		if m < 1 || m > 12 {
			return nil, fmt.Errorf("source %s: invalid month %d", s.Name, m)
		}
		sched.Months = append(sched.Months, time.Month(m))
	}

	return sched, nil
}
