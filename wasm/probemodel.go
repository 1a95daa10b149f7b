package wasm

import (
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX field numbers used by the probe model.
const (
	modelIRVersion    protowire.Number = 1
	modelProducerName protowire.Number = 2
	modelProducerVer  protowire.Number = 3
	modelGraph        protowire.Number = 7
	modelOpsetImport  protowire.Number = 8
	opsetDomain       protowire.Number = 1
	opsetVersion      protowire.Number = 2
	graphNode         protowire.Number = 1
	graphName         protowire.Number = 2
	graphInput        protowire.Number = 11
	graphOutput       protowire.Number = 12
	nodeInput         protowire.Number = 1
	nodeOutput        protowire.Number = 2
	nodeName          protowire.Number = 3
	nodeOpType        protowire.Number = 4
	valueInfoName     protowire.Number = 1
	valueInfoType     protowire.Number = 2
	typeTensor        protowire.Number = 1
	tensorElemType    protowire.Number = 1
	tensorShape       protowire.Number = 2
	shapeDim          protowire.Number = 1
	dimValue          protowire.Number = 1
)

const (
	elemTypeFloat  = 1
	probeIRVersion = 8
	probeOpset     = 13
	probeInput     = "x"
	probeOutput    = "y"
	probeOpType    = "Identity"
)

var (
	probeOnce  sync.Once
	probeBytes []byte
)

// ProbeModel returns a serialized ONNX model holding a single Identity node
// over a float[1] tensor. Creating a session from it exercises the backend
// binary without downloading a real model.
func ProbeModel() []byte {
	probeOnce.Do(func() {
		probeBytes = encodeProbeModel()
	})
	return append([]byte(nil), probeBytes...)
}

func encodeProbeModel() []byte {
	var node []byte
	node = appendString(node, nodeInput, probeInput)
	node = appendString(node, nodeOutput, probeOutput)
	node = appendString(node, nodeName, "probe")
	node = appendString(node, nodeOpType, probeOpType)

	var graph []byte
	graph = appendMessage(graph, graphNode, node)
	graph = appendString(graph, graphName, "runtime-probe")
	graph = appendMessage(graph, graphInput, floatValueInfo(probeInput))
	graph = appendMessage(graph, graphOutput, floatValueInfo(probeOutput))

	var opset []byte
	opset = appendString(opset, opsetDomain, "")
	opset = appendVarint(opset, opsetVersion, probeOpset)

	var model []byte
	model = appendVarint(model, modelIRVersion, probeIRVersion)
	model = appendString(model, modelProducerName, "cvstudio")
	model = appendString(model, modelProducerVer, "1")
	model = appendMessage(model, modelGraph, graph)
	model = appendMessage(model, modelOpsetImport, opset)
	return model
}

func floatValueInfo(name string) []byte {
	var dim []byte
	dim = appendVarint(dim, dimValue, 1)

	var shape []byte
	shape = appendMessage(shape, shapeDim, dim)

	var tensor []byte
	tensor = appendVarint(tensor, tensorElemType, elemTypeFloat)
	tensor = appendMessage(tensor, tensorShape, shape)

	var typ []byte
	typ = appendMessage(typ, typeTensor, tensor)

	var info []byte
	info = appendString(info, valueInfoName, name)
	info = appendMessage(info, valueInfoType, typ)
	return info
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
