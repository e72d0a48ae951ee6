package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	// for performance test
	"net/http"
	_ "net/http/pprof"

	"DBCConverter/base"
	"DBCConverter/can"
	"DBCConverter/dbc"
	"DBCConverter/rwmap"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sys/unix"
)

// filled by the embed build tag
var DbcContent []byte

const BufSize = 2 * 1024

type RecvData struct {
	RecvTime int64
	Data     []byte
}

var (
	wg      sync.WaitGroup
	log     = base.Logger
	signals = make(chan os.Signal, 1)
)

var (
	totalUdp         atomic.Int64
	totalLoseUdp     atomic.Int64
	totalLoseCAN     atomic.Int64
	totalLosePublish atomic.Int64
	totalPdus        atomic.Int64
)

func main() {
	serve := flag.Bool("serve", false, "decode live frames from UDP and publish to MQTT")
	configPath := flag.String("config", "./config.json", "config file for -serve")
	flag.Parse()

	if *serve {
		runServe(*configPath)
		return
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: dbcconverter input.dbc output.xlsx")
		os.Exit(1)
	}

	if _, err := os.Stat(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: input file not found: %s\n", args[0])
		os.Exit(1)
	}

	if err := convert(args[0], args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(configPath string) {
	if !loadConfig(configPath) {
		os.Exit(1)
	}
	fmt.Println("Load config success !!!")

	if err := base.SetupLogger(&base.GConfig.LOG); err != nil {
		fmt.Println("SetupLogger failed !!! ", err)
		os.Exit(1)
	}

	logFile, err := initLogFile()
	if err != nil {
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	log.Debugln("Init log success !!!")

	data, ok := loadModel()
	if !ok {
		log.Errorln("Load DBC failed !!!")
		os.Exit(1)
	}
	log.Debugf("Load DBC success !!! messages(%d), signals(%d)", len(data.BoVOList), data.SignalCount())

	// Trap SIGINT to trigger a graceful shutdown.
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	wg.Add(1)
	go handleQuit(&wg)

	client := initMQTT()
	defer client.Disconnect(&paho.Disconnect{ReasonCode: 0})

	if base.GConfig.PProf.Enable {
		startPProf(&base.GConfig.PProf)
	}

	wg.Add(1)
	go startHttpServer(&wg)

	specialCANMap := rwmap.NewRWMap(128)
	for _, canId := range base.GConfig.SpecialCANs {
		specialCANMap.Set(int64(canId), true)
	}

	canDataChan := make(chan RecvData, base.GConfig.DataChanSize)
	pduChan := make(chan []can.PDU, base.GConfig.DataChanSize)

	for i := 0; i < base.GConfig.DecodeUdpRoutines; i++ {
		go decodeUdpData(canDataChan, pduChan, specialCANMap)
	}

	for i := 0; i < base.GConfig.WorkRoutines; i++ {
		wg.Add(1)
		go handleData(data, pduChan, client)
	}

	go readData(canDataChan)

	wg.Wait()
}

func readData(outChan chan<- RecvData) {
	udpHandle, err := initInterface()
	if err != nil {
		log.Fatalln(err)
	}
	defer udpHandle.Close()

	var readErrCnt int
	buf := make([]byte, BufSize)
	for {
		n, addr, err := udpHandle.ReadFrom(buf)
		log.Debugf("Read %d byte data, err(%v)", n, err)

		totalUdp.Add(1)
		if err != nil {
			readErrCnt++
			udpHandle, _ = initInterface()

			// keep retry failures from flooding the log
			if readErrCnt <= 10 {
				log.Errorln(err, addr)
			}
			continue
		}
		readErrCnt = 0

		if n <= 0 {
			continue
		}

		var recvData RecvData
		recvData.RecvTime = time.Now().UnixMicro()
		recvData.Data = make([]byte, n)
		copy(recvData.Data, buf)

		select {
		case outChan <- recvData:
		default:
			totalLoseUdp.Add(1)
		}
	}
}

func initInterface() (net.PacketConn, error) {
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	udpHandle, err := cfg.ListenPacket(context.Background(), "udp", base.GConfig.UdpServer.Host)
	if err != nil {
		return nil, err
	}

	log.Debugf("Open %s success !!!", base.GConfig.UdpServer.Host)
	return udpHandle, nil
}

func decodeUdpData(dataChan <-chan RecvData, outChan chan<- []can.PDU, specialCANMap *rwmap.RWMap) {
	for data := range dataChan {
		allPdu := can.DecodePacket(data.Data, data.RecvTime)
		allPdu = filterDirection(allPdu, specialCANMap)
		if len(allPdu) <= 0 {
			continue
		}
		totalPdus.Add(int64(len(allPdu)))

		select {
		case outChan <- allPdu:
		default:
			totalLoseCAN.Add(int64(len(allPdu)))
		}
	}
}

// filterDirection keeps received frames; sent frames pass only for the
// configured special CANs.
func filterDirection(pdus []can.PDU, specialCANMap *rwmap.RWMap) []can.PDU {
	kept := pdus[:0]
	for _, pdu := range pdus {
		switch pdu.Direction {
		case can.SDPERecv:
			kept = append(kept, pdu)
		case can.SDPESend:
			if _, ok := specialCANMap.Get(int64(pdu.CanId)); ok {
				kept = append(kept, pdu)
			}
		default:
			log.Errorf("Unknown direction !!! canId(%d), direction(%d)", pdu.CanId, pdu.Direction)
		}
	}
	return kept
}

func handleData(data *dbc.DbcVO, pduChan <-chan []can.PDU, client *paho.Client) {
	defer wg.Done()

	for pdus := range pduChan {
		payload := can.ParseToJson(data, pdus)
		if len(payload) <= 0 {
			log.Debugln("No frame data")
			continue
		}

		if _, err := client.Publish(context.Background(), &paho.Publish{
			Topic:   base.GConfig.Frames.Topic,
			QoS:     byte(base.GConfig.Frames.Qos),
			Retain:  base.GConfig.Frames.Retained,
			Payload: payload,
		}); err != nil {
			totalLosePublish.Add(1)
			log.Errorln("Error sending message: ", err)
		}
	}

	log.Debugln("HandleData quit !!!")
}

func handleQuit(wg *sync.WaitGroup) {
	defer wg.Done()

	<-signals
	log.Debugln("recv interrupt signal")
	log.Infof("totalUdp(%d), totalLoseUdp(%d), totalPdus(%d), totalLoseCAN(%d), totalLosePublish(%d), shortPacket(%d), msgTypeErr(%d), shortPdu(%d)",
		totalUdp.Load(), totalLoseUdp.Load(), totalPdus.Load(), totalLoseCAN.Load(), totalLosePublish.Load(),
		can.TotalShortPacket.Load(), can.TotalMsgTypeErr.Load(), can.TotalShortPdu.Load(),
	)

	os.Exit(0)
}

func loadConfig(path string) bool {
	jData, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(err)
		return false
	}

	err = jsoniter.Unmarshal(jData, base.GConfig)
	if err != nil {
		fmt.Println(err)
		return false
	}

	return true
}

func loadModel() (*dbc.DbcVO, bool) {
	if base.GConfig.UseExcel {
		data, err := dbc.ParseExcel(base.GConfig.DBCExcel)
		if err != nil {
			log.Errorln(err)
			return nil, false
		}
		return data, true
	}

	var parser *dbc.Parser
	if base.GConfig.EmbedDBC {
		if len(DbcContent) <= 0 {
			log.Errorln("No embedded DBC content, build with the embed tag")
			return nil, false
		}
		parser = dbc.NewParser(bytes.NewReader(DbcContent))
	} else {
		f, err := os.Open(base.GConfig.DBCPath)
		if err != nil {
			log.Errorln(err)
			return nil, false
		}
		defer f.Close()
		parser = dbc.NewParser(f)
	}

	if !parser.Parse() {
		return nil, false
	}
	return parser.Model(), true
}

func initLogFile() (*os.File, error) {
	if !base.GConfig.LogToFile {
		return nil, nil
	}

	err := os.MkdirAll("./log", os.ModePerm)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	strTime := now.Format(base.TimestampFormat)
	logName := "./log/dbcconverter." + sanitizeLogName(strTime) + ".log"

	logFile, err := os.OpenFile(logName, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Open %s success !\n", logName)

	log.SetOutput(logFile)
	return logFile, nil
}

func sanitizeLogName(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == ':' {
			out[i] = '_'
		}
	}
	return string(out)
}

func initMQTT() *paho.Client {
	tcpConn, err := net.Dial("tcp", base.GConfig.Broker)
	if err != nil {
		log.Fatalln("Failed to connect to ", base.GConfig.Broker, "reason:", err)
	}
	log.Debugln("Success to connect to ", base.GConfig.Broker)

	tcpConn = packets.NewThreadSafeConn(tcpConn)

	client := paho.NewClient(paho.ClientConfig{
		Conn: tcpConn,
	})

	cp := &paho.Connect{
		KeepAlive:  30,
		ClientID:   base.GConfig.Clientid,
		CleanStart: true,
		Username:   base.GConfig.Username,
		Password:   []byte(base.GConfig.Password),
	}

	if base.GConfig.Username != "" {
		cp.UsernameFlag = true
	}
	if base.GConfig.Password != "" {
		cp.PasswordFlag = true
	}

	ca, err := client.Connect(context.Background(), cp)
	if err != nil {
		log.Fatalln(err)
	}

	if ca.ReasonCode != 0 {
		log.Fatalf("Failed to connect to %s : %d - %s", base.GConfig.Broker, ca.ReasonCode, ca.Properties.ReasonString)
	}

	log.Debugf("Connected to %s\n", base.GConfig.Broker)
	return client
}

func startPProf(pprof *base.PProf) {
	server := &HttpServer{
		Server: &http.Server{
			Addr:    pprof.Addr,
			Handler: nil,
		},
	}

	go server.WaitExitSignal(pprof.Timeout * time.Second)
	go func(server *HttpServer) {
		err := server.ListenAndServe()
		if err != nil {
			log.Errorln("unexpected error from ListenAndServe: ", "reason:", err)
		}

		log.Debugln("pprof goroutine exited.")
	}(server)
}

func startHttpServer(wg *sync.WaitGroup) {
	defer wg.Done()
	http.HandleFunc(base.GConfig.HttpServer.HealthCheckURI, Pong)
	http.ListenAndServe(base.GConfig.HttpServer.ServerAddr, nil)
}

func Pong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
