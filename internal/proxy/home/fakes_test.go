package home

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/marko911/arbitration-relayer/internal/proxy"
)

var (
	proxyAddress    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	realitioAddress = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type onChainRequest struct {
	status uint8
	answer common.Hash
}

type requestKey struct {
	questionID common.Hash
	requester  common.Address
}

// fakeChain answers proxy view calls and log queries from in-memory state.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	requests    map[requestKey]onChainRequest
	requesterOf map[common.Hash]common.Address
	logs        []types.Log
	queries     []ethereum.FilterQuery
	callErr     error

	// When set, the realitio() call signals realitioCalled and blocks until
	// realitioGate is closed.
	realitioCalled chan struct{}
	realitioGate   chan struct{}
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:        head,
		requests:    make(map[requestKey]onChainRequest),
		requesterOf: make(map[common.Hash]common.Address),
	}
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	if *msg.To != proxyAddress {
		return nil, fmt.Errorf("unexpected call target %s", msg.To.Hex())
	}

	method, err := parsedProxyABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	if method.Name == "realitio" && f.realitioGate != nil {
		close(f.realitioCalled)
		<-f.realitioGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch method.Name {
	case "requests":
		r := f.requests[requestKey{common.Hash(args[0].([32]byte)), args[1].(common.Address)}]
		return method.Outputs.Pack(r.status, [32]byte(r.answer))
	case "questionIDToRequester":
		return method.Outputs.Pack(f.requesterOf[common.Hash(args[0].([32]byte))])
	case "realitio":
		return method.Outputs.Pack(realitioAddress)
	}
	return nil, errors.New("unsupported method " + method.Name)
}

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	var out []types.Log
	for _, l := range f.logs {
		if l.Address != q.Addresses[0] {
			continue
		}
		if l.BlockNumber < q.FromBlock.Uint64() || l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if !matchTopics(l.Topics, q.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func matchTopics(have []common.Hash, want [][]common.Hash) bool {
	for i, group := range want {
		if len(group) == 0 {
			continue
		}
		if i >= len(have) {
			return false
		}
		found := false
		for _, h := range group {
			if have[i] == h {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeChain) setRequest(q common.Hash, requester common.Address, status uint8) {
	f.requests[requestKey{q, requester}] = onChainRequest{status: status}
}

func (f *fakeChain) addRequestLog(event string, q common.Hash, requester common.Address, maxPrevious int64, block uint64) {
	ev := parsedProxyABI.Events[event]
	args := []interface{}{big.NewInt(maxPrevious)}
	if event == eventRequestRejected {
		args = append(args, "bond too low")
	}
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		panic(err)
	}
	f.logs = append(f.logs, types.Log{
		Address:     proxyAddress,
		Topics:      []common.Hash{ev.ID, q, common.BytesToHash(requester.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	})
}

func (f *fakeChain) addAnsweredLog(q common.Hash, answer common.Hash, block uint64) {
	ev := parsedProxyABI.Events[eventArbitratorAnswered]
	data, err := ev.Inputs.NonIndexed().Pack([32]byte(answer))
	if err != nil {
		panic(err)
	}
	f.logs = append(f.logs, types.Log{
		Address:     proxyAddress,
		Topics:      []common.Hash{ev.ID, q},
		Data:        data,
		BlockNumber: block,
	})
}

func (f *fakeChain) addNewAnswerLog(q, answer, historyHash common.Hash, user common.Address, block uint64) {
	ev := parsedRealitioABI.Events[eventLogNewAnswer]
	data, err := ev.Inputs.NonIndexed().Pack([32]byte(answer), [32]byte(historyHash), big.NewInt(1), big.NewInt(2), false)
	if err != nil {
		panic(err)
	}
	f.logs = append(f.logs, types.Log{
		Address:     realitioAddress,
		Topics:      []common.Hash{ev.ID, q, common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
	})
}

type sentTx struct {
	to     common.Address
	method string
	args   []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentTx
	err  error
}

func (s *fakeSender) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	method, err := parsedProxyABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	s.sent = append(s.sent, sentTx{to: to, method: method.Name, args: args})
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func newTestProxy(chain *fakeChain, sender *fakeSender, maxRange uint64) *Proxy {
	return New(Config{
		Config: proxy.Config{Address: proxyAddress, StartBlock: 1, MaxBlockRange: maxRange},
	}, chain, sender)
}
