// Package uciproto implements the bidirectional text framing for the UCI
// subprotocol spoken to the engine subprocess (spec §4.1). It translates
// between typed records and the line-oriented UCI text protocol; it knows
// nothing about subprocess lifecycle or driver state (that is
// internal/engine's job).
package uciproto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chesslab/analysisd/internal/models"
)

// InfoRecord is the typed content of one "info" line. Fields the engine
// didn't emit are left at their zero value; callers must check Has* before
// trusting a field that could legitimately be absent.
type InfoRecord struct {
	HasDepth    bool
	Depth       int
	HasSelDepth bool
	SelDepth    int
	HasMultiPV  bool
	MultiPV     int
	HasScore    bool
	Score       models.Score // raw, side-to-move POV
	HasPV       bool
	PV          []string
}

var uciKeywords = map[string]bool{
	"depth": true, "seldepth": true, "time": true, "nodes": true,
	"pv": true, "multipv": true, "score": true, "cp": true,
	"mate": true, "nps": true, "currmove": true, "currmovenumber": true,
	"hashfull": true, "tbhits": true, "string": true, "lowerbound": true,
	"upperbound": true,
}

func isUCIKeyword(s string) bool { return uciKeywords[s] }

// ParseInfoLine is a total function: any input produces a (possibly empty)
// InfoRecord and never fails. A malformed value (e.g. "depth abc") drops
// just that one field, not the whole line (spec §4.1).
func ParseInfoLine(line string) InfoRecord {
	var rec InfoRecord

	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return rec
	}

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if v, ok := intAt(fields, i+1); ok {
				rec.HasDepth, rec.Depth = true, v
				i++
			}
		case "seldepth":
			if v, ok := intAt(fields, i+1); ok {
				rec.HasSelDepth, rec.SelDepth = true, v
				i++
			}
		case "multipv":
			if v, ok := intAt(fields, i+1); ok {
				rec.HasMultiPV, rec.MultiPV = true, v
				i++
			}
		case "score":
			if i+1 >= len(fields) {
				break
			}
			switch fields[i+1] {
			case "cp":
				if v, ok := intAt(fields, i+2); ok {
					rec.HasScore = true
					rec.Score = models.CPScore(v)
					i += 2
				}
			case "mate":
				if v, ok := intAt(fields, i+2); ok {
					rec.HasScore = true
					rec.Score = models.MateScore(v)
					i += 2
				}
			}
		case "pv":
			var pv []string
			j := i + 1
			for ; j < len(fields); j++ {
				if isUCIKeyword(fields[j]) {
					break
				}
				pv = append(pv, fields[j])
			}
			if len(pv) > 0 {
				rec.HasPV = true
				rec.PV = pv
			}
			i = len(fields) // pv runs to end of line, per UCI convention
		}
	}

	return rec
}

// BestMoveLine is the parsed content of a "bestmove" line.
type BestMoveLine struct {
	Move   string
	Ponder string // empty when absent
}

// ParseBestMoveLine is total: a malformed line yields an empty Move.
func ParseBestMoveLine(line string) BestMoveLine {
	fields := strings.Fields(line)
	var out BestMoveLine
	if len(fields) < 2 || fields[0] != "bestmove" {
		return out
	}
	out.Move = fields[1]
	if len(fields) >= 4 && fields[2] == "ponder" {
		out.Ponder = fields[3]
	}
	return out
}

// WriteUCI formats the initial protocol handshake command.
func WriteUCI() string { return "uci" }

// WriteIsReady formats the readiness ping.
func WriteIsReady() string { return "isready" }

// WriteSetOption formats a setoption command.
func WriteSetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s", name, value)
}

// WriteNewGame formats the ucinewgame command, mandatory before every
// analyze to prevent transposition-table contamination from a prior search
// (spec §4.2).
func WriteNewGame() string { return "ucinewgame" }

const startPositionFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// WritePosition formats a position command. When fen is the standard
// initial position, "position startpos" is emitted instead of the
// equivalent FEN form (spec §4.1).
func WritePosition(fen string, moves []string) string {
	var b strings.Builder
	if fen == "" || fen == startPositionFEN {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(fen)
	}
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	return b.String()
}

// WriteGoDepth formats a depth-bounded go command.
func WriteGoDepth(depth int) string { return fmt.Sprintf("go depth %d", depth) }

// WriteGoMovetime formats a time-bounded go command.
func WriteGoMovetime(ms int) string { return fmt.Sprintf("go movetime %d", ms) }

// WriteStop formats the search-abort command.
func WriteStop() string { return "stop" }

// WriteQuit formats the engine-termination command.
func WriteQuit() string { return "quit" }

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return v, true
}
