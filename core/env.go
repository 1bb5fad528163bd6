package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/infinivision/kmem/errmsg"
	"github.com/joho/godotenv"
)

const EnvPrefix = "KMEM_"

// LoadEnv overlays KMEM_* settings from the given dotenv files and then
// from the process environment, which wins.
func LoadEnv(cfg Config, files ...string) (Config, error) {
	mp := make(map[string]string)
	if len(files) > 0 {
		fmp, err := godotenv.Read(files...)
		if err != nil {
			return cfg, err
		}
		for k, v := range fmp {
			mp[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			mp[k] = v
		}
	}
	for k, v := range mp {
		if err := cfg.set(strings.TrimPrefix(k, EnvPrefix), v); err != nil {
			return cfg, fmt.Errorf("%s=%s: %w", k, v, err)
		}
	}
	return cfg, nil
}

func (cfg *Config) set(k, v string) error {
	var err error

	switch k {
	case "BUFFERS":
		cfg.Buffers, err = strconv.Atoi(v)
	case "BUCKETS":
		cfg.Buckets, err = strconv.Atoi(v)
	case "PAGES":
		cfg.Pages, err = strconv.Atoi(v)
	case "PHYS_BASE":
		cfg.PhysBase, err = strconv.ParseUint(v, 0, 64)
	case "DEVICE_BLOCKS":
		err = parseUint32(v, &cfg.DeviceBlocks)
	case "LOG_DEVICE":
		err = parseUint32(v, &cfg.LogDevice)
	case "LOG_START":
		err = parseUint32(v, &cfg.LogStart)
	case "LOG_SIZE":
		err = parseUint32(v, &cfg.LogSize)
	case "TICK":
		cfg.TickCycle, err = time.ParseDuration(v)
	case "DEVICES":
		cfg.Devices, err = parseDevices(v)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%v: %w", err, errmsg.InvalidConfig)
	}
	return nil
}

func parseUint32(v string, x *uint32) error {
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return err
	}
	*x = uint32(n)
	return nil
}

// parseDevices reads "1=fs.img,2=" into a device table.
func parseDevices(v string) (map[uint32]string, error) {
	mp := make(map[uint32]string)
	for _, ent := range strings.Split(v, ",") {
		if ent = strings.TrimSpace(ent); ent == "" {
			continue
		}
		id, path, _ := strings.Cut(ent, "=")
		var dev uint32
		if err := parseUint32(strings.TrimSpace(id), &dev); err != nil {
			return nil, err
		}
		mp[dev] = strings.TrimSpace(path)
	}
	return mp, nil
}
