package earthengine

import (
	"strconv"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

// Sentinel-2 QA60 bits flagging opaque clouds and cirrus.
const (
	s2CloudBit  = 10
	s2CirrusBit = 11
)

const mapVar = "_MAPPING_VAR_0_0"

// expression is an Earth Engine computation graph: a table of value nodes
// and the id of the node that produces the result.
type expression struct {
	Result string               `json:"result"`
	Values map[string]valueNode `json:"values"`
}

// valueNode is one node of the graph. Exactly one field is set.
type valueNode struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	FunctionInvocationValue *functionInvocation `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *functionDefinition `json:"functionDefinitionValue,omitempty"`
}

type functionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]valueNode `json:"arguments"`
}

type functionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

type args map[string]valueNode

// graph collects the shared nodes of an expression.
type graph struct {
	values map[string]valueNode
}

func (g *graph) add(n valueNode) valueNode {
	id := strconv.Itoa(len(g.values))
	g.values[id] = n
	return valueNode{ValueReference: id}
}

func call(name string, a args) valueNode {
	return valueNode{FunctionInvocationValue: &functionInvocation{FunctionName: name, Arguments: a}}
}

func constant(v any) valueNode {
	return valueNode{ConstantValue: v}
}

func imageConstant(v float64) valueNode {
	return call("Image.constant", args{"value": constant(v)})
}

// buildExpression compiles a thumbnail request into the graph the API
// evaluates. Sources with a reducer are image collections filtered to the
// date window and region, prepared per image, then reduced; sources without
// one are single images. The result is clipped to the region and scaled to
// the requested pixel dimensions.
func buildExpression(req domain.ThumbnailRequest) expression {
	g := &graph{values: make(map[string]valueNode)}
	src := req.Source
	region := g.add(call("GeometryConstructors.Polygon", args{
		"coordinates": constant(polygonCoordinates(req.Region)),
		"evenOdd":     constant(true),
	}))

	var img valueNode
	if src.Reducer == "" {
		img = prepare(call("Image.load", args{"id": constant(src.Dataset)}), src)
	} else {
		col := call("ImageCollection.load", args{"id": constant(src.Dataset)})
		if src.StartDate != "" && src.EndDate != "" {
			col = call("Collection.filter", args{
				"collection": col,
				"filter": call("Filter.dateRangeContains", args{
					"leftValue": call("DateRange", args{
						"start": constant(src.StartDate),
						"end":   constant(src.EndDate),
					}),
					"rightField": constant("system:time_start"),
				}),
			})
		}
		col = call("Collection.filter", args{
			"collection": col,
			"filter": call("Filter.intersects", args{
				"leftField":  constant(".all"),
				"rightValue": region,
			}),
		})
		body := g.add(prepare(valueNode{ArgumentReference: mapVar}, src))
		col = call("Collection.map", args{
			"collection": col,
			"baseAlgorithm": valueNode{FunctionDefinitionValue: &functionDefinition{
				ArgumentNames: []string{mapVar},
				Body:          body.ValueReference,
			}},
		})
		img = call("reduce."+src.Reducer, args{"collection": col})
	}

	if src.Offset != 0 {
		img = call("Image.add", args{"image1": img, "image2": imageConstant(src.Offset)})
	}
	img = call("Image.clipToBoundsAndScale", args{
		"input":    img,
		"geometry": region,
		"width":    constant(req.Width),
		"height":   constant(req.Height),
	})

	root := g.add(img)
	return expression{Result: root.ValueReference, Values: g.values}
}

// prepare masks and reduces one image to the single band the layer shows.
func prepare(img valueNode, src domain.Source) valueNode {
	if src.Mask == "s2clouds" {
		img = maskS2Clouds(img)
	}
	if len(src.NormalizedDifference) == 2 {
		nd := call("Image.normalizedDifference", args{
			"input":     img,
			"bandNames": constant(src.NormalizedDifference),
		})
		return call("Image.rename", args{"input": nd, "names": constant([]string{src.Band})})
	}
	return call("Image.select", args{"input": img, "bandSelectors": constant([]string{src.Band})})
}

// maskS2Clouds keeps pixels whose QA60 cloud and cirrus bits are both clear.
func maskS2Clouds(img valueNode) valueNode {
	qa := call("Image.select", args{"input": img, "bandSelectors": constant([]string{"QA60"})})
	bitClear := func(bit int) valueNode {
		return call("Image.eq", args{
			"image1": call("Image.bitwiseAnd", args{"image1": qa, "image2": imageConstant(float64(int(1) << bit))}),
			"image2": imageConstant(0),
		})
	}
	mask := call("Image.and", args{"image1": bitClear(s2CloudBit), "image2": bitClear(s2CirrusBit)})
	return call("Image.updateMask", args{"image": img, "mask": mask})
}

func polygonCoordinates(r domain.Region) [][][2]float64 {
	rings := make([][][2]float64, len(r.Polygon))
	for i, ring := range r.Polygon {
		rings[i] = make([][2]float64, len(ring))
		for j, p := range ring {
			rings[i][j] = [2]float64{p.Lon(), p.Lat()}
		}
	}
	return rings
}
