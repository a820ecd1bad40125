package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/mateodaza/galeon-sub004/internal/field"
	"github.com/mateodaza/galeon-sub004/internal/poolerr"
	"github.com/mateodaza/galeon-sub004/pkg/types"
)

// ProgressKind marks a proof generation job's lifecycle stage, the three
// events spec §4.7 requires the adapter to report.
type ProgressKind string

const (
	ProgressLoading ProgressKind = "loading"
	ProgressProving ProgressKind = "proving"
	ProgressDone    ProgressKind = "done"
)

// Progress is one lifecycle event for an in-flight proof job.
type Progress struct {
	Kind ProgressKind
}

// Result is a proof job's terminal outcome.
type Result struct {
	Proof                 Proof
	PublicSignals         []field.F
	NewCommitmentHash     field.F
	ExistingNullifierHash field.F
	Err                   error
}

// Submission is the message-passing handle for one proof generation job:
// a progress channel and a single-value result channel, both closed when
// the job ends.
type Submission struct {
	Progress <-chan Progress
	Result   <-chan Result
}

// Adapter invokes an external Groth16 prover binary as a subprocess,
// communicating over stdin/stdout with a small JSON protocol. Grounded
// on the teacher's internal/pouw/engine.go worker-loop pattern
// (background goroutine, ctx.Done() select, explicit start/stop), here
// specialized to a one-shot request/response job instead of a continuous
// mining loop.
type Adapter struct {
	proverPath string
	log        *logrus.Entry
}

// NewAdapter returns an adapter that invokes the prover binary at
// proverPath. log may be nil, in which case a disabled logger is used.
func NewAdapter(proverPath string, log *logrus.Entry) *Adapter {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &Adapter{proverPath: proverPath, log: log}
}

// Generate submits witness to the prover and returns immediately with a
// Submission; the job itself runs on a background goroutine the caller
// does not otherwise manage. Cancelling ctx kills the subprocess and the
// job ends with ctx.Err() as its result error.
func (a *Adapter) Generate(ctx context.Context, witness types.WithdrawalWitness) *Submission {
	progress := make(chan Progress, 3)
	result := make(chan Result, 1)

	go a.run(ctx, witness, progress, result)

	return &Submission{Progress: progress, Result: result}
}

func (a *Adapter) run(ctx context.Context, witness types.WithdrawalWitness, progress chan<- Progress, result chan<- Result) {
	defer close(progress)
	defer close(result)

	progress <- Progress{Kind: ProgressLoading}

	payload, err := json.Marshal(encodeWitness(witness))
	if err != nil {
		result <- Result{Err: poolerr.Wrap(poolerr.ErrProverFailure, "encode witness: %v", err)}
		return
	}

	cmd := exec.CommandContext(ctx, a.proverPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	progress <- Progress{Kind: ProgressProving}
	a.log.WithField("witness_label", field.ToBigInt(witness.Label)).Debug("invoking prover subprocess")

	runErr := cmd.Run()
	if ctx.Err() != nil {
		result <- Result{Err: ctx.Err()}
		return
	}
	if runErr != nil {
		result <- Result{Err: poolerr.Wrap(poolerr.ErrProverFailure, "prover exited: %v: %s", runErr, stderr.String())}
		return
	}

	var wireResult wireProverResult
	if err := json.Unmarshal(stdout.Bytes(), &wireResult); err != nil {
		result <- Result{Err: poolerr.Wrap(poolerr.ErrProverFailure, "decode prover output: %v", err)}
		return
	}

	decoded, err := decodeProverResult(wireResult)
	if err != nil {
		result <- Result{Err: err}
		return
	}

	progress <- Progress{Kind: ProgressDone}
	result <- decoded
}

// wireWitness is the JSON request payload sent to the prover subprocess
// on stdin. Field elements are hex-encoded big-endian Bytes32, matching
// the wire convention used at every other serialization boundary.
type wireWitness struct {
	WithdrawnValue string   `json:"withdrawnValue"`
	StateRoot      string   `json:"stateRoot"`
	StateTreeDepth uint32   `json:"stateTreeDepth"`
	ASPRoot        string   `json:"aspRoot"`
	ASPTreeDepth   uint32   `json:"aspTreeDepth"`
	Context        string   `json:"context"`
	Label          string   `json:"label"`

	ExistingValue     string `json:"existingValue"`
	ExistingNullifier string `json:"existingNullifier"`
	ExistingSecret    string `json:"existingSecret"`

	NewNullifier string `json:"newNullifier"`
	NewSecret    string `json:"newSecret"`

	StateSiblings []string `json:"stateSiblings"`
	StateIndex    uint64   `json:"stateIndex"`
	ASPSiblings   []string `json:"aspSiblings"`
	ASPIndex      uint64   `json:"aspIndex"`
}

func encodeWitness(w types.WithdrawalWitness) wireWitness {
	return wireWitness{
		WithdrawnValue:    w.WithdrawnValue.String(),
		StateRoot:         hexField(w.StateRoot),
		StateTreeDepth:    w.StateTreeDepth,
		ASPRoot:           hexField(w.ASPRoot),
		ASPTreeDepth:      w.ASPTreeDepth,
		Context:           hexField(w.Context),
		Label:             hexField(w.Label),
		ExistingValue:     w.ExistingValue.String(),
		ExistingNullifier: hexField(w.ExistingNullifier),
		ExistingSecret:    hexField(w.ExistingSecret),
		NewNullifier:      hexField(w.NewNullifier),
		NewSecret:         hexField(w.NewSecret),
		StateSiblings:     hexFields(w.StateSiblings),
		StateIndex:        w.StateIndex,
		ASPSiblings:       hexFields(w.ASPSiblings),
		ASPIndex:          w.ASPIndex,
	}
}

// wireProverResult is the JSON response read from the prover
// subprocess's stdout on success.
type wireProverResult struct {
	Proof struct {
		Ax, Ay         string
		Bx1, Bx0       string
		By1, By0       string
		Cx, Cy         string
	} `json:"proof"`
	PublicSignals         []string `json:"publicSignals"`
	NewCommitmentHash     string   `json:"newCommitmentHash"`
	ExistingNullifierHash string   `json:"existingNullifierHash"`
}

func decodeProverResult(w wireProverResult) (Result, error) {
	var proof Proof

	ax, err := parseBigHex(w.Proof.Ax)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.a.x: %v", err)
	}
	ay, err := parseBigHex(w.Proof.Ay)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.a.y: %v", err)
	}
	proof.A.X.SetBigInt(ax)
	proof.A.Y.SetBigInt(ay)

	bx1, err := parseBigHex(w.Proof.Bx1)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.b.x1: %v", err)
	}
	bx0, err := parseBigHex(w.Proof.Bx0)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.b.x0: %v", err)
	}
	by1, err := parseBigHex(w.Proof.By1)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.b.y1: %v", err)
	}
	by0, err := parseBigHex(w.Proof.By0)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.b.y0: %v", err)
	}
	proof.B.X.A1.SetBigInt(bx1)
	proof.B.X.A0.SetBigInt(bx0)
	proof.B.Y.A1.SetBigInt(by1)
	proof.B.Y.A0.SetBigInt(by0)

	cx, err := parseBigHex(w.Proof.Cx)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.c.x: %v", err)
	}
	cy, err := parseBigHex(w.Proof.Cy)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "proof.c.y: %v", err)
	}
	proof.C.X.SetBigInt(cx)
	proof.C.Y.SetBigInt(cy)

	signals := make([]field.F, len(w.PublicSignals))
	for i, s := range w.PublicSignals {
		b, err := parseBigHex(s)
		if err != nil {
			return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "publicSignals[%d]: %v", i, err)
		}
		signals[i] = field.FromBigInt(b)
	}

	newCommitment, err := parseBigHex(w.NewCommitmentHash)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "newCommitmentHash: %v", err)
	}
	existingNullifier, err := parseBigHex(w.ExistingNullifierHash)
	if err != nil {
		return Result{}, poolerr.Wrap(poolerr.ErrProverFailure, "existingNullifierHash: %v", err)
	}

	return Result{
		Proof:                 proof,
		PublicSignals:         signals,
		NewCommitmentHash:     field.FromBigInt(newCommitment),
		ExistingNullifierHash: field.FromBigInt(existingNullifier),
	}, nil
}

func hexField(f field.F) string {
	b := field.ToBytes32(f)
	return "0x" + hex.EncodeToString(b[:])
}

func hexFields(fs []field.F) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = hexField(f)
	}
	return out
}

func parseBigHex(s string) (*big.Int, error) {
	// big.Int's own base-16 parser is used rather than common.HexToBytes:
	// the wire protocol allows odd-length hex (no forced byte alignment),
	// which encoding/hex rejects outright.
	trimmed := s
	if len(trimmed) > 1 && trimmed[0] == '0' && (trimmed[1] == 'x' || trimmed[1] == 'X') {
		trimmed = trimmed[2:]
	}
	b, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex integer %q", s)
	}
	return b, nil
}
