package base

import (
	"time"
)

type MQTTTopic struct {
	Topic    string
	Qos      int
	Retained bool
}

type MQTT struct {
	Frames   MQTTTopic
	Broker   string
	Clientid string
	Username string
	Password string
}

type HttpServer struct {
	ServerAddr     string // in the form "host:port"
	HealthCheckURI string // default: /ping
}

type LOG struct {
	LogToFile bool
	Format    string // json, text
	LogLevel  string // panic, fatal, error, warn warning, info, debug, trace
}

type PProf struct {
	Enable  bool
	Addr    string
	Timeout time.Duration
}

type UdpServer struct {
	Host string
}

type DataSource struct {
	UdpServer `json:"UdpServer"`
}

type DBC struct {
	EmbedDBC bool //true:embed the dbc file into the binary, false:load from DBCPath
	DBCPath  string
	DBCExcel string
	UseExcel bool //true:load the model from DBCExcel instead of DBCPath
}

type Config struct {
	MQTT              `json:"MQTT"`
	HttpServer        `json:"HttpServer"`
	DataSource        `json:"DataSource"`
	DataChanSize      uint
	WorkRoutines      int
	DecodeUdpRoutines int
	DBC               `json:"DBC"`
	LOG               `json:"LOG"`
	PProf             `json:"PProf"`
	SpecialCANs       []int
}

func NewConfig() *Config {
	return &Config{
		MQTT{},
		HttpServer{":8080", "/ping"},
		DataSource{UdpServer{":9000"}},
		10000,
		10,
		10,
		DBC{false, "./can.dbc", "./can.xlsx", false},
		LOG{false, "text", "info"},
		PProf{},
		[]int{},
	}
}

var GConfig = NewConfig()
