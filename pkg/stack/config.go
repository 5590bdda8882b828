package stack

import(
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/focus-stack/pkg/focus"
	"github.com/abworrall/focus-stack/pkg/pyrstore"
	"github.com/abworrall/focus-stack/pkg/register"
)

const DefaultDepth = 8

// Config holds the parameters for one stacking run. The Stacker takes a
// copy when it is created; changing a Config afterwards has no effect on
// it.
type Config struct {
	Verbosity       int

	KernelSize      int     // side of the sharpness window, in pixels
	Depth           int     // pyramid levels, including the base level
	UpsampleFactor  int     // registration resolves shifts to 1/UpsampleFactor pixels

	Backend         string  // "cpu" or "gpu"
	DeviceID        int     // which GPU, if Backend is "gpu"
	Workers         int     // goroutines per pixel pass (focus, pyramids, FFTs); <=0 means one per CPU

	StoreKind       string  // if set ("dir" or "sqlite"), pyramids go via a store
	StorePath       string

	DebugDir        string  // if set, intermediate images get dumped here
}

func NewConfig() Config {
	return Config{
		KernelSize:     focus.DefaultKernelSize,
		Depth:          DefaultDepth,
		UpsampleFactor: register.DefaultScaleFactor,
		Backend:        focus.KindCPU,
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a YAML config file. Anything the file doesn't
// mention keeps its default value.
func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", filename, err)
	}

	c, err := newConfigFromYaml(contents)
	if err != nil {
		return Config{}, fmt.Errorf("config parse %s: %w", filename, err)
	}
	return c, nil
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Validate checks the values make sense on their own. Whether Depth
// suits the images can only be checked once the first one is loaded.
func (c Config)Validate() error {
	if c.KernelSize < 1 {
		return fmt.Errorf("config: kernel size %d, must be at least 1", c.KernelSize)
	}
	if c.Depth < 1 {
		return fmt.Errorf("config: depth %d, must be at least 1", c.Depth)
	}
	if c.UpsampleFactor < 1 {
		return fmt.Errorf("config: upsample factor %d, must be at least 1", c.UpsampleFactor)
	}

	switch c.Backend {
	case "", focus.KindCPU, focus.KindGPU:
	default:
		return fmt.Errorf("config: backend '%s', must be '%s' or '%s'", c.Backend, focus.KindCPU, focus.KindGPU)
	}

	switch c.StoreKind {
	case "":
	case pyrstore.KindDir, pyrstore.KindSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("config: store '%s' needs a path", c.StoreKind)
		}
	default:
		return fmt.Errorf("config: store '%s', must be '%s' or '%s'", c.StoreKind, pyrstore.KindDir, pyrstore.KindSQLite)
	}

	return nil
}
