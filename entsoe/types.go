package entsoe

import "encoding/xml"

// Bidding zone EIC codes for the areas used in the config.
var areaCodes = map[string]string{
	"SE1": "10Y1001A1001A44P",
	"SE2": "10Y1001A1001A45N",
	"SE3": "10Y1001A1001A46L",
	"SE4": "10Y1001A1001A47J",
	"FI":  "10YFI-1--------U",
	"NO1": "10YNO-1--------2",
	"NO2": "10YNO-2--------T",
	"NO3": "10YNO-3--------J",
	"NO4": "10YNO-4--------9",
	"NO5": "10Y1001A1001A48H",
	"DK1": "10YDK-1--------W",
	"DK2": "10YDK-2--------M",
	"EE":  "10Y1001A1001A39I",
	"LV":  "10YLV-1001A00074",
	"LT":  "10YLT-1001A0008Q",
}

type timeInterval struct {
	Start string `xml:"start"`
	End   string `xml:"end"`
}

type point struct {
	Position int     `xml:"position"`
	Price    float64 `xml:"price.amount"`
}

type period struct {
	TimeInterval timeInterval `xml:"timeInterval"`
	Resolution   string       `xml:"resolution"`
	Points       []point      `xml:"Point"`
}

type timeSeries struct {
	Currency    string   `xml:"currency_Unit.name"`
	MeasureUnit string   `xml:"price_Measure_Unit.name"`
	Periods     []period `xml:"Period"`
}

// document is either a Publication_MarketDocument or, when there is no
// data for the request, an Acknowledgement_MarketDocument.
type document struct {
	XMLName    xml.Name
	TimeSeries []timeSeries `xml:"TimeSeries"`
	Reason     []struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}
