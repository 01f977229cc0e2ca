package foreign

import (
	"github.com/marko911/arbitration-relayer/internal/proxy"
)

const eventArbitrationRequested = "ArbitrationRequested"

const proxyABI = `[
	{"type":"function","name":"arbitrationRequests","stateMutability":"view",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_contestedAnswer","type":"bytes32"}],
	 "outputs":[{"name":"status","type":"uint8"},{"name":"requester","type":"address"},
	            {"name":"deposit","type":"uint256"},{"name":"disputeID","type":"uint256"},
	            {"name":"ruling","type":"uint256"}]},
	{"type":"function","name":"handleFailedDisputeCreation","stateMutability":"nonpayable",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_contestedAnswer","type":"bytes32"}],
	 "outputs":[]},
	{"type":"event","name":"ArbitrationRequested","anonymous":false,
	 "inputs":[{"name":"_questionID","type":"bytes32","indexed":true},
	           {"name":"_contestedAnswer","type":"bytes32","indexed":false},
	           {"name":"_requester","type":"address","indexed":true},
	           {"name":"_maxPrevious","type":"uint256","indexed":false}]}
]`

var parsedProxyABI = proxy.MustParseABI(proxyABI)
