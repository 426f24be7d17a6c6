package tk102

type Report struct {
	Raw      string `json:"raw"`
	Datetime string `json:"datetime"`
	Phone    string `json:"phone"`
	GPS      GPS    `json:"gps"`
	Geo      Geo    `json:"geo"`
	Speed    Speed  `json:"speed"`
	IMEI     string `json:"imei"`
	Checksum bool   `json:"checksum"`
}

type GPS struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Signal string `json:"signal"`
	Fix    string `json:"fix"`
}

type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Bearing   int     `json:"bearing"`
}

type Speed struct {
	Knots float64 `json:"knots"`
	KMH   float64 `json:"kmh"`
	MPH   float64 `json:"mph"`
}

const (
	SignalFull = "full"
	SignalLow  = "low"

	FixActive  = "active"
	FixInvalid = "invalid"
)
