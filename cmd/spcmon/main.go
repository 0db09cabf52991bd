package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/sink/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/spc/"
	station = "+"
)

func init() {
	if val := os.Getenv("SPC_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&station, "station", station, "Station to monitor.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	handler := mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicMeta) {
			if len(payload) == 0 {
				log.Printf("%s: gone", topic)
			} else {
				log.Printf("%s: %s", topic, string(payload))
			}
			return
		}
		r, err := msgs.DecodeReading(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %v %s (frame %s, at %s)", topic, r.Value, r.Unit, r.Frame,
			r.Time().Format(time.StampMilli))
	})
	q.Sub(mqtt.ReadingTopic(station, "+"), handler)
	q.Sub(mqtt.MetaTopic(station, "+"), handler)

	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
