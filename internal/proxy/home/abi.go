package home

import (
	"github.com/marko911/arbitration-relayer/internal/proxy"
)

const (
	eventRequestNotified    = "RequestNotified"
	eventRequestRejected    = "RequestRejected"
	eventArbitratorAnswered = "ArbitratorAnswered"
	eventLogNewAnswer       = "LogNewAnswer"
)

const proxyABI = `[
	{"type":"function","name":"requests","stateMutability":"view",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_requester","type":"address"}],
	 "outputs":[{"name":"status","type":"uint8"},{"name":"arbitratorAnswer","type":"bytes32"}]},
	{"type":"function","name":"questionIDToRequester","stateMutability":"view",
	 "inputs":[{"name":"_questionID","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"realitio","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"handleNotifiedRequest","stateMutability":"nonpayable",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_requester","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"handleRejectedRequest","stateMutability":"nonpayable",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_requester","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"reportArbitrationAnswer","stateMutability":"nonpayable",
	 "inputs":[{"name":"_questionID","type":"bytes32"},{"name":"_lastHistoryHash","type":"bytes32"},
	           {"name":"_lastAnswerOrCommitmentID","type":"bytes32"},{"name":"_lastAnswerer","type":"address"}],
	 "outputs":[]},
	{"type":"event","name":"RequestNotified","anonymous":false,
	 "inputs":[{"name":"_questionID","type":"bytes32","indexed":true},
	           {"name":"_requester","type":"address","indexed":true},
	           {"name":"_maxPrevious","type":"uint256","indexed":false}]},
	{"type":"event","name":"RequestRejected","anonymous":false,
	 "inputs":[{"name":"_questionID","type":"bytes32","indexed":true},
	           {"name":"_requester","type":"address","indexed":true},
	           {"name":"_maxPrevious","type":"uint256","indexed":false},
	           {"name":"_reason","type":"string","indexed":false}]},
	{"type":"event","name":"ArbitratorAnswered","anonymous":false,
	 "inputs":[{"name":"_questionID","type":"bytes32","indexed":true},
	           {"name":"_answer","type":"bytes32","indexed":false}]}
]`

const realitioABI = `[
	{"type":"event","name":"LogNewAnswer","anonymous":false,
	 "inputs":[{"name":"answer","type":"bytes32","indexed":false},
	           {"name":"question_id","type":"bytes32","indexed":true},
	           {"name":"history_hash","type":"bytes32","indexed":false},
	           {"name":"user","type":"address","indexed":true},
	           {"name":"bond","type":"uint256","indexed":false},
	           {"name":"ts","type":"uint256","indexed":false},
	           {"name":"is_commitment","type":"bool","indexed":false}]}
]`

var (
	parsedProxyABI    = proxy.MustParseABI(proxyABI)
	parsedRealitioABI = proxy.MustParseABI(realitioABI)
)
