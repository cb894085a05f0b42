package sensors

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/publish"
)

const DefaultW1Dir = "/sys/bus/w1/devices"

var ErrNoW1Bus = errors.New("no 1-wire bus")

// W1Temperature reads DS18B20 style sensors through the kernel w1 driver.
type W1Temperature struct {
	dir     string
	devices []Device
	logger  *slog.Logger
}

func NewW1Temperature(dir string, devices []Device) *W1Temperature {
	if dir == "" {
		dir = DefaultW1Dir
	}
	return &W1Temperature{
		dir:     dir,
		devices: devices,
		logger:  slog.Default().With("module", "sensors", slog.String("sensor", "w1_temperature")),
	}
}

// Available reports whether the w1 driver is loaded.
func (s *W1Temperature) Available() error {
	if st, err := os.Stat(s.dir); err != nil || !st.IsDir() {
		return fmt.Errorf("%w at %s", ErrNoW1Bus, s.dir)
	}
	return nil
}

func (s *W1Temperature) Execute(ctx context.Context) (publish.Message, error) {
	result := publish.Message{}
	for _, d := range s.devices {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		value, err := s.read(d.ID)
		if err != nil {
			s.logger.Warn("failed to read temperature", slog.String("device", d.Name), slog.Any("error", err))
			continue
		}
		result[d.Name] = value
	}
	return result, nil
}

// read prefers the temperature attribute of newer kernels and falls back
// to parsing w1_slave.
func (s *W1Temperature) read(id string) (float64, error) {
	devDir := filepath.Join(s.dir, w1Name(id))

	if data, err := os.ReadFile(filepath.Join(devDir, "temperature")); err == nil {
		milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, fmt.Errorf("invalid temperature %q", strings.TrimSpace(string(data)))
		}
		return convert.TwoDecimals(float64(milli) / 1000), nil
	}

	data, err := os.ReadFile(filepath.Join(devDir, "w1_slave"))
	if err != nil {
		return 0, err
	}
	return parseW1Slave(data)
}

// w1Name accepts both the bare id and the full 28-xxxx directory name.
func w1Name(id string) string {
	if strings.Contains(id, "-") {
		return id
	}
	return "28-" + id
}

// parseW1Slave parses
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return 0, errors.New("empty w1_slave")
	}
	if !strings.HasSuffix(strings.TrimSpace(sc.Text()), "YES") {
		return 0, errors.New("crc check failed")
	}
	if !sc.Scan() {
		return 0, errors.New("missing temperature line")
	}
	_, raw, ok := strings.Cut(sc.Text(), "t=")
	if !ok {
		return 0, errors.New("missing temperature value")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q", raw)
	}
	return convert.TwoDecimals(float64(milli) / 1000), nil
}
