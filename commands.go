package camilladsp

import (
	"context"
	"math"
	"time"

	"github.com/pior/camilladsp/config"
	"github.com/pior/camilladsp/protocol"
)

// Controller is the typed command set of a CamillaDSP engine.
type Controller interface {
	GetVersion(ctx context.Context) (Version, error)
	GetState(ctx context.Context) (ProcessingState, error)
	GetSignalRange(ctx context.Context) (float64, error)
	GetSignalRangeDB(ctx context.Context) (float64, error)
	GetCaptureRateRaw(ctx context.Context) (int, error)
	GetCaptureRate(ctx context.Context) (int, error)
	GetUpdateInterval(ctx context.Context) (time.Duration, error)
	SetUpdateInterval(ctx context.Context, interval time.Duration) error
	GetRateAdjust(ctx context.Context) (float64, error)
	GetBufferLevel(ctx context.Context) (int, error)
	GetClippedSamples(ctx context.Context) (int, error)
	Stop(ctx context.Context) error
	Exit(ctx context.Context) error
	Reload(ctx context.Context) error
	GetConfigName(ctx context.Context) (string, error)
	SetConfigName(ctx context.Context, path string) error
	GetConfigRaw(ctx context.Context) (string, error)
	SetConfigRaw(ctx context.Context, text string) error
	GetConfig(ctx context.Context) (*config.Document, error)
	SetConfig(ctx context.Context, doc *config.Document) error
	ValidateConfig(ctx context.Context, doc *config.Document) (*config.Document, error)
	ReadConfigFile(ctx context.Context, path string) (*config.Document, error)
	ReadConfig(ctx context.Context, text string) (*config.Document, error)
}

// Executor performs one command exchange with the engine.
type Executor interface {
	Exchange(ctx context.Context, command string, arg any) (*protocol.Reply, error)
}

// Commands implements Controller on top of an Executor.
// It is embedded in Client, and can be used alone with a custom Executor.
type Commands struct {
	executor Executor
}

var _ Controller = (*Commands)(nil)

// NewCommands creates a Commands instance sending through executor.
func NewCommands(executor Executor) *Commands {
	return &Commands{
		executor: executor,
	}
}

// GetVersion asks the engine for its version.
func (c *Commands) GetVersion(ctx context.Context) (Version, error) {
	text, err := c.queryText(ctx, protocol.CmdGetVersion)
	if err != nil {
		return Version{}, err
	}
	version, err := ParseVersion(text)
	if err != nil {
		return Version{}, invalidValue(protocol.CmdGetVersion, err)
	}
	return version, nil
}

// GetState returns the processing state. A state outside RUNNING, PAUSED and
// INACTIVE is a *ProtocolError.
func (c *Commands) GetState(ctx context.Context) (ProcessingState, error) {
	text, err := c.queryText(ctx, protocol.CmdGetState)
	if err != nil {
		return "", err
	}
	state, ok := parseProcessingState(text)
	if !ok {
		return "", &ProtocolError{Command: protocol.CmdGetState, Message: "unknown state " + text}
	}
	return state, nil
}

// GetSignalRange returns the peak-to-peak range of the last chunk, linear.
// Full scale is 2.0.
func (c *Commands) GetSignalRange(ctx context.Context) (float64, error) {
	return c.queryFloat(ctx, protocol.CmdGetSignalRange)
}

// GetSignalRangeDB returns the signal range in dB relative to full scale.
// A silent signal reads -1000.
func (c *Commands) GetSignalRangeDB(ctx context.Context) (float64, error) {
	r, err := c.GetSignalRange(ctx)
	if err != nil {
		return 0, err
	}
	return signalRangeDB(r), nil
}

func signalRangeDB(r float64) float64 {
	if r <= 0 {
		return -1000
	}
	return 20 * math.Log10(r/2.0)
}

// GetCaptureRateRaw returns the measured capture sample rate.
func (c *Commands) GetCaptureRateRaw(ctx context.Context) (int, error) {
	return c.queryInt(ctx, protocol.CmdGetCaptureRate)
}

// GetCaptureRate returns the standard sample rate nearest to the measured one,
// or 0 when the measurement is far outside every standard rate.
func (c *Commands) GetCaptureRate(ctx context.Context) (int, error) {
	raw, err := c.GetCaptureRateRaw(ctx)
	if err != nil {
		return 0, err
	}
	rate, _ := NearestStandardRate(raw)
	return rate, nil
}

// GetUpdateInterval returns how often the engine refreshes its signal and rate
// measurements.
func (c *Commands) GetUpdateInterval(ctx context.Context) (time.Duration, error) {
	ms, err := c.queryInt(ctx, protocol.CmdGetUpdateInterval)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SetUpdateInterval sets the measurement refresh interval. The engine works in
// whole milliseconds: a fractional interval is rounded up, so a positive
// interval never becomes 0. A negative interval is rejected without contacting
// the engine.
func (c *Commands) SetUpdateInterval(ctx context.Context, interval time.Duration) error {
	if interval < 0 {
		return &CamillaError{
			Command: protocol.CmdSetUpdateInterval,
			Message: "update interval must not be negative: " + interval.String(),
		}
	}
	ms := interval.Milliseconds()
	if interval%time.Millisecond != 0 {
		ms++
	}
	_, err := c.executor.Exchange(ctx, protocol.CmdSetUpdateInterval, ms)
	return err
}

// GetRateAdjust returns the resampler or clock adjustment factor, 1.0 when idle.
func (c *Commands) GetRateAdjust(ctx context.Context) (float64, error) {
	return c.queryFloat(ctx, protocol.CmdGetRateAdjust)
}

// GetBufferLevel returns the playback buffer fill level, in frames.
func (c *Commands) GetBufferLevel(ctx context.Context) (int, error) {
	return c.queryInt(ctx, protocol.CmdGetBufferLevel)
}

// GetClippedSamples returns the number of samples clipped since the engine started.
func (c *Commands) GetClippedSamples(ctx context.Context) (int, error) {
	return c.queryInt(ctx, protocol.CmdGetClippedSamples)
}

// Stop stops processing and waits for a new configuration.
func (c *Commands) Stop(ctx context.Context) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdStop, nil)
	return err
}

// Exit asks the engine to shut down.
func (c *Commands) Exit(ctx context.Context) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdExit, nil)
	return err
}

// Reload reloads the configuration file named by GetConfigName.
func (c *Commands) Reload(ctx context.Context) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdReload, nil)
	return err
}

// GetConfigName returns the path of the active configuration file.
func (c *Commands) GetConfigName(ctx context.Context) (string, error) {
	return c.queryText(ctx, protocol.CmdGetConfigName)
}

// SetConfigName sets the configuration file path used by Reload.
func (c *Commands) SetConfigName(ctx context.Context, path string) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdSetConfigName, path)
	return err
}

// GetConfigRaw returns the active configuration as YAML text.
func (c *Commands) GetConfigRaw(ctx context.Context) (string, error) {
	return c.queryText(ctx, protocol.CmdGetConfig)
}

// SetConfigRaw replaces the active configuration with YAML text.
func (c *Commands) SetConfigRaw(ctx context.Context, text string) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdSetConfig, text)
	return err
}

// GetConfig returns the active configuration.
func (c *Commands) GetConfig(ctx context.Context) (*config.Document, error) {
	return c.queryDocument(ctx, protocol.CmdGetConfig, nil)
}

// SetConfig replaces the active configuration.
func (c *Commands) SetConfig(ctx context.Context, doc *config.Document) error {
	_, err := c.executor.Exchange(ctx, protocol.CmdSetConfig, doc)
	return err
}

// ValidateConfig checks doc without applying it and returns the engine's
// normalised form, with defaults filled in.
func (c *Commands) ValidateConfig(ctx context.Context, doc *config.Document) (*config.Document, error) {
	return c.queryDocument(ctx, protocol.CmdValidateConfig, doc)
}

// ReadConfigFile loads and validates a configuration file on the engine host.
func (c *Commands) ReadConfigFile(ctx context.Context, path string) (*config.Document, error) {
	return c.queryDocument(ctx, protocol.CmdReadConfigFile, path)
}

// ReadConfig validates YAML configuration text.
func (c *Commands) ReadConfig(ctx context.Context, text string) (*config.Document, error) {
	return c.queryDocument(ctx, protocol.CmdReadConfig, text)
}

func (c *Commands) queryText(ctx context.Context, command string) (string, error) {
	reply, err := c.executor.Exchange(ctx, command, nil)
	if err != nil {
		return "", err
	}
	s, err := reply.Text()
	if err != nil {
		return "", invalidValue(command, err)
	}
	return s, nil
}

func (c *Commands) queryInt(ctx context.Context, command string) (int, error) {
	reply, err := c.executor.Exchange(ctx, command, nil)
	if err != nil {
		return 0, err
	}
	n, err := reply.Int()
	if err != nil {
		return 0, invalidValue(command, err)
	}
	return int(n), nil
}

func (c *Commands) queryFloat(ctx context.Context, command string) (float64, error) {
	reply, err := c.executor.Exchange(ctx, command, nil)
	if err != nil {
		return 0, err
	}
	f, err := reply.Float()
	if err != nil {
		return 0, invalidValue(command, err)
	}
	return f, nil
}

func (c *Commands) queryDocument(ctx context.Context, command string, arg any) (*config.Document, error) {
	reply, err := c.executor.Exchange(ctx, command, arg)
	if err != nil {
		return nil, err
	}
	doc, err := reply.Document()
	if err != nil {
		return nil, invalidValue(command, err)
	}
	return doc, nil
}

// invalidValue reports a reply value of the wrong shape.
func invalidValue(command string, err error) error {
	return &ProtocolError{Command: command, Message: "unexpected reply value", Err: err}
}
