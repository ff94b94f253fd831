package protocol

// Command names understood by the engine's websocket server.
//
// Names are case-insensitive on the wire; the engine answers with its own
// spelling, so replies must be matched with Reply.Matches.
const (
	CmdGetVersion        = "GetVersion"
	CmdGetState          = "GetState"
	CmdGetSignalRange    = "GetSignalRange"
	CmdGetCaptureRate    = "GetCaptureRate"
	CmdGetUpdateInterval = "GetUpdateInterval"
	CmdSetUpdateInterval = "SetUpdateInterval"
	CmdGetRateAdjust     = "GetRateAdjust"
	CmdGetBufferLevel    = "GetBufferLevel"
	CmdGetClippedSamples = "GetClippedSamples"
	CmdStop              = "Stop"
	CmdExit              = "Exit"
	CmdReload            = "Reload"
	CmdGetConfigName     = "GetConfigName"
	CmdSetConfigName     = "SetConfigName"
	CmdGetConfig         = "GetConfig"
	CmdSetConfig         = "SetConfig"
	CmdReadConfig        = "ReadConfig"
	CmdReadConfigFile    = "ReadConfigFile"
	CmdValidateConfig    = "ValidateConfig"

	// CmdInvalid is the name the engine replies with when it did not recognise
	// the command it was sent.
	CmdInvalid = "Invalid"
)

// Result is the outcome tag carried by every reply.
type Result string

const (
	ResultOK    Result = "Ok"
	ResultError Result = "Error"
)

// DefaultErrorMessage is used when the engine reports an error without a message.
const DefaultErrorMessage = "Command returned an error"
