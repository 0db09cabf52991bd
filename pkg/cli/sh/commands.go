package sh

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/serialport"
	"github.com/robotalks/spc.go/pkg/sink"
	"github.com/robotalks/spc.go/pkg/sink/stream"
	"github.com/robotalks/spc.go/pkg/spc"
)

// SessionStatus is the printable state of the shell session.
type SessionStatus struct {
	Stored    int         `json:"stored"`
	Receiving bool        `json:"receiving"`
	Complete  bool        `json:"complete"`
	StrictBCD bool        `json:"strict_bcd"`
	Frame     string      `json:"frame"`
	Reading   spc.Reading `json:"reading"`
}

// FeedBits feeds bits given as 0/1 strings into the session.
// It stops at the first error and reports whether a frame is complete.
func FeedBits(s *spc.Session, args []string) (fed int, complete bool, err error) {
	for _, arg := range args {
		for _, ch := range arg {
			var bit byte
			switch ch {
			case '0':
			case '1':
				bit = 1
			case '_', ',':
				continue
			default:
				return fed, complete, fmt.Errorf("invalid bit %q", ch)
			}
			if complete, err = s.AcceptBit(bit); err != nil {
				return fed, complete, err
			}
			fed++
		}
	}
	return fed, complete, nil
}

// EncodeValue builds the frame for a value with the given decimals.
func EncodeValue(value float64, decimals uint8, unit spc.Unit) (spc.Frame, error) {
	if decimals > spc.MaxDecimals {
		return spc.Frame{}, fmt.Errorf("decimals %d exceeds %d", decimals, spc.MaxDecimals)
	}
	if math.IsNaN(value) {
		return spc.Frame{}, fmt.Errorf("invalid value %v", value)
	}
	magnitude := math.Round(math.Abs(value) * math.Pow10(int(decimals)))
	if magnitude > spc.MaxMagnitude {
		return spc.Frame{}, fmt.Errorf("%v does not fit in 6 digits with %d decimals", value, decimals)
	}
	// a value rounding to zero is never negative
	return spc.EncodeFrame(uint32(magnitude), decimals, value < 0 && magnitude > 0, unit)
}

func formatReading(r spc.Reading) string {
	return strconv.FormatFloat(r.Value, 'f', int(r.Decimals), 64) + " " + r.Unit.String()
}

func formatStored(s *spc.Session) string {
	return fmt.Sprintf("%d/%d nibbles", s.Stored(), spc.FrameLength)
}

var (
	// ResetCmd resets the session.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "start a new frame",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Session.Reset(); err != nil {
				c.Err(err)
			}
		},
	}

	// BitCmd feeds bits.
	BitCmd = ishell.Cmd{
		Name:    "bits",
		Aliases: []string{"bit", "b"},
		Help:    "BITS... feed bits, least significant bit of each nibble first",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			fed, complete, err := FeedBits(s.Session, c.Args)
			if err != nil {
				c.Err(fmt.Errorf("after %d bits: %v", fed, err))
				return
			}
			if complete {
				c.Println("frame complete")
				return
			}
			c.Println(formatStored(s.Session))
		},
	}

	// FrameCmd feeds a whole frame given as nibbles.
	FrameCmd = ishell.Cmd{
		Name:    "frame",
		Aliases: []string{"f"},
		Help:    "NIBBLES reset and feed 13 hex nibbles, e.g. FFFF012345620",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			f, err := spc.ParseFrame(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			s.Session.Reset()
			for _, bit := range f.Bits() {
				if _, err = s.Session.AcceptBit(bit); err != nil {
					c.Err(err)
					return
				}
			}
			c.Println(formatStored(s.Session))
		},
	}

	// DecodeCmd decodes the complete frame.
	DecodeCmd = ishell.Cmd{
		Name:    "decode",
		Aliases: []string{"d"},
		Help:    "decode the complete frame",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			r, err := s.Session.Decode()
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, &r, func() string { return formatReading(r) })
		},
	}

	// StatusCmd prints the session state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "print session state",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st := SessionStatus{
				Stored:    s.Session.Stored(),
				Receiving: s.Session.Receiving(),
				Complete:  s.Session.Complete(),
				StrictBCD: s.Session.StrictBCD,
				Frame:     s.Session.Frame().String(),
				Reading:   s.Session.Reading(),
			}
			s.Print(c, &st, func() string {
				return fmt.Sprintf("%s frame=%s strict=%v last=%s (raw unit %d)",
					formatStored(s.Session), st.Frame, st.StrictBCD, formatReading(st.Reading), st.Reading.RawUnit)
			})
		},
	}

	// StrictCmd toggles strict BCD digit checks.
	StrictCmd = ishell.Cmd{
		Name: "strict",
		Help: "[on|off] reject digit nibbles above 9",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				switch c.Args[0] {
				case "on", "true", "1":
					s.Session.StrictBCD = true
				case "off", "false", "0":
					s.Session.StrictBCD = false
				default:
					c.Err(fmt.Errorf("expect on or off"))
					return
				}
			}
			c.Printf("strict %v\n", s.Session.StrictBCD)
		},
	}

	// EncodeCmd prints the frame and bits of a value.
	EncodeCmd = ishell.Cmd{
		Name:    "encode",
		Aliases: []string{"e"},
		Help:    "VALUE DECIMALS [mm|in] print frame and bits",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("VALUE DECIMALS expected"))
				return
			}
			value, err := strconv.ParseFloat(c.Args[0], 64)
			if err != nil {
				c.Err(err)
				return
			}
			decimals, err := strconv.ParseUint(c.Args[1], 10, 8)
			if err != nil {
				c.Err(err)
				return
			}
			unit := spc.UnitMillimeter
			if len(c.Args) > 2 {
				if unit, err = spc.ParseUnit(c.Args[2]); err != nil {
					c.Err(err)
					return
				}
			}
			f, err := EncodeValue(value, uint8(decimals), unit)
			if err != nil {
				c.Err(err)
				return
			}
			var bits strings.Builder
			for n, bit := range f.Bits() {
				if n > 0 && n%spc.BitsPerNibble == 0 {
					bits.WriteByte('_')
				}
				bits.WriteByte('0' + bit)
			}
			c.Printf("frame %s\nbits  %s\n", f, bits.String())
		},
	}

	// HistoryCmd lists recent readings from the database.
	HistoryCmd = ishell.Cmd{
		Name:    "history",
		Aliases: []string{"h"},
		Help:    "GAUGE [N] list recent readings",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("GAUGE expected"))
				return
			}
			n := 10
			if len(c.Args) > 1 {
				var err error
				if n, err = strconv.Atoi(c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}
			store, err := s.Store()
			if err != nil {
				c.Err(err)
				return
			}
			readings, err := store.Recent(context.TODO(), c.Args[0], n)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if readings == nil {
					readings = []*msgs.Reading{}
				}
				s.Print(c, readings, nil)
				return
			}
			for _, r := range readings {
				c.Printf("%s %v %s\n", r.Time().Format(time.RFC3339Nano), r.Value, r.Unit)
			}
		},
	}

	// StatsCmd prints reading statistics from the database.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "GAUGE print statistics of recorded readings",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("GAUGE expected"))
				return
			}
			store, err := s.Store()
			if err != nil {
				c.Err(err)
				return
			}
			sums, err := store.Summaries(context.TODO(), c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, sums, nil)
				return
			}
			if len(sums) == 0 {
				c.Println("No readings")
			}
			for _, sum := range sums {
				c.Printf("%s [%s] n=%d mean=%g stddev=%g min=%g max=%g\n",
					sum.Gauge, sum.Unit, sum.Count, sum.Mean, sum.StdDev, sum.Min, sum.Max)
			}
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := serialport.List()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			s.Print(c, ports, func() string {
				if len(ports) == 0 {
					return "No serial ports"
				}
				return strings.Join(ports, "\n")
			})
		},
	}

	// ReplayCmd prints the readings of a stream capture.
	ReplayCmd = ishell.Cmd{
		Name: "replay",
		Help: "FILE [GAUGE] print readings from a capture file",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE expected"))
				return
			}
			f, err := os.Open(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			defer f.Close()
			var gauge string
			if len(c.Args) > 1 {
				gauge = c.Args[1]
			}
			printer := sink.PublishFunc(func(ctx context.Context, r *msgs.Reading) error {
				if gauge != "" && r.Gauge != gauge {
					return nil
				}
				s.Print(c, r, func() string {
					return fmt.Sprintf("%s %s %v %s", r.Time().Format(time.RFC3339Nano), r.Gauge, r.Value, r.Unit)
				})
				return nil
			})
			if _, err := stream.NewReader(f).Replay(context.TODO(), printer); err != nil {
				c.Err(err)
			}
		},
	}
)
