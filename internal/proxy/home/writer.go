package home

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marko911/arbitration-relayer/internal/proxy"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// HandleNotifiedRequest asks the proxy to forward a notified request to the
// foreign chain.
func (p *Proxy) HandleNotifiedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return p.send(ctx, req, "handleNotifiedRequest", req.QuestionID, req.Requester)
}

// HandleRejectedRequest refunds a request the proxy rejected.
func (p *Proxy) HandleRejectedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return p.send(ctx, req, "handleRejectedRequest", req.QuestionID, req.Requester)
}

// ReportArbitrationAnswer reports the ruling back to Realitio. It needs the
// question's last answer, its answerer and the history hash preceding it.
func (p *Proxy) ReportArbitrationAnswer(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	last, err := p.lastAnswer(ctx, req.QuestionID)
	if err != nil {
		return req, err
	}
	return p.send(ctx, req, "reportArbitrationAnswer",
		req.QuestionID, last.previousHistoryHash, last.answer, last.answerer)
}

func (p *Proxy) send(ctx context.Context, req protov1.Request, method string, args ...interface{}) (protov1.Request, error) {
	data, err := p.proxy.Pack(method, args...)
	if err != nil {
		return req, err
	}
	if _, err := p.sender.Send(ctx, p.cfg.Address, data); err != nil {
		return req, fmt.Errorf("%s %s: %w", method, req.QuestionID.Hex(), err)
	}
	return req, nil
}

type answer struct {
	answer              common.Hash
	answerer            common.Address
	previousHistoryHash common.Hash
}

// lastAnswer walks every LogNewAnswer of the question. Realitio's
// history_hash is the hash after the answer, so the value to report is the
// one from the answer before the last, or zero when there was only one.
func (p *Proxy) lastAnswer(ctx context.Context, questionID common.Hash) (answer, error) {
	realitio, err := p.realitioContract(ctx)
	if err != nil {
		return answer{}, err
	}

	head, err := p.backend.BlockNumber(ctx)
	if err != nil {
		return answer{}, fmt.Errorf("get block number: %w", err)
	}

	from := p.cfg.RealitioStartBlock
	if from == 0 {
		from = p.cfg.StartBlock
	}

	logs, err := realitio.FilterLogs(ctx, eventLogNewAnswer, from, head, []common.Hash{questionID})
	if err != nil {
		return answer{}, err
	}
	if len(logs) == 0 {
		return answer{}, fmt.Errorf("%w: %s", ErrNoAnswerFound, questionID.Hex())
	}

	var latest, previous []interface{}
	for i, l := range logs {
		values, err := realitio.UnpackEvent(eventLogNewAnswer, l)
		if err != nil {
			return answer{}, err
		}
		if i == len(logs)-2 {
			previous = values
		}
		if i == len(logs)-1 {
			latest = values
		}
	}

	last := answer{}
	a, ok := latest[0].([32]byte)
	if !ok {
		return answer{}, fmt.Errorf("LogNewAnswer: unexpected answer type %T", latest[0])
	}
	last.answer = common.Hash(a)
	last.answerer = common.BytesToAddress(logs[len(logs)-1].Topics[2].Bytes())

	if previous != nil {
		h, ok := previous[1].([32]byte)
		if !ok {
			return answer{}, fmt.Errorf("LogNewAnswer: unexpected history hash type %T", previous[1])
		}
		last.previousHistoryHash = common.Hash(h)
	}
	return last, nil
}

func (p *Proxy) realitioContract(ctx context.Context) (*proxy.Contract, error) {
	p.realitioMu.Lock()
	defer p.realitioMu.Unlock()

	if p.realitio != nil {
		return p.realitio, nil
	}

	address := p.cfg.Realitio
	if address == (common.Address{}) {
		out, err := p.proxy.Call(ctx, "realitio")
		if err != nil {
			return nil, err
		}
		a, ok := out[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("realitio: unexpected type %T", out[0])
		}
		address = a
	}

	p.realitio = proxy.NewContract(parsedRealitioABI, address, p.backend, p.cfg.MaxBlockRange)
	return p.realitio, nil
}
