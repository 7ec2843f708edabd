/*
DESCRIPTION
  telemetry.go reports per-GOP encode statistics to the cloud, in the same
  best-effort, log-and-continue style revid's senders.go uses for its
  HTTP/netsender reporting path.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package telemetry reports per-GOP encode statistics through
// ausocean/client's netsender, mirroring revid's best-effort cloud
// reporting: a failed report is logged, never escalated to the caller's
// encode loop.
package telemetry

import (
	"context"
	"fmt"

	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/utils/logging"
)

// Record is an immutable per-GOP summary built by the encode orchestrator
// from the same feedback values the rate controller already consumes.
type Record struct {
	GOPIndex  int
	MeanQP    float64
	BitsUsed  int64
	FrameCount int
	Timestamp int64 // unix seconds, assigned by the caller
}

// Reporter is fed one Record per completed GOP.
type Reporter interface {
	Report(ctx context.Context, rec Record) error
}

// NetsenderReporter reports Records as "X0" pin values through an
// existing netsender.Sender, the same client revid's httpSender wraps.
type NetsenderReporter struct {
	client *netsender.Sender
	log    logging.Logger
}

// NewNetsenderReporter returns a Reporter that best-effort-publishes
// Records through client.
func NewNetsenderReporter(client *netsender.Sender, log logging.Logger) *NetsenderReporter {
	return &NetsenderReporter{client: client, log: log}
}

// Report encodes rec as netsender pin data and sends it. Errors are
// logged and returned; callers that want best-effort semantics (as the
// encode loop does) should log a returned error rather than abort.
func (r *NetsenderReporter) Report(ctx context.Context, rec Record) error {
	ip := r.client.Param("ip")
	pins := netsender.MakePins(ip, "X")
	for i, pin := range pins {
		if pin.Name != "X0" {
			continue
		}
		pins[i].MimeType = "application/json"
		pins[i].Value = int(rec.BitsUsed)
		pins[i].Data = []byte(fmt.Sprintf(
			`{"gop":%d,"mean_qp":%.2f,"bits_used":%d,"frames":%d,"ts":%d}`,
			rec.GOPIndex, rec.MeanQP, rec.BitsUsed, rec.FrameCount, rec.Timestamp))
		break
	}

	r.log.Debug("reporting gop telemetry", "gop", rec.GOPIndex, "bits_used", rec.BitsUsed)
	_, _, err := r.client.Send(netsender.RequestPoll, pins)
	if err != nil {
		r.log.Warning("telemetry report failed", "error", err)
		return err
	}
	return nil
}
