package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (the -device flag)
// Val: YAML for that device; omitted fields keep their defaults
// -----------------------------------------------------------------------------

const cfgNode = `
device: sht30-node
sensor:
  id: sht30
  bus: i2c0
  sda: 2
  scl: 3
  clock_hz: 100000
  reset_pin: 16
  address: 0x44
timing:
  reset_ms: 300
  trigger_ms: 300
  data_ready_ms: 3000
  sample_ms: 500
mesh:
  transport: bus
  group: 0x0001
  element: 0
heartbeat:
  interval: 2
`

const cfgGateway = `
device: sht30-gateway
sensor:
  id: sht30
  bus: i2c1
mesh:
  transport: mqtt
  broker: tcp://localhost:1883
  client_id: sht30-gateway
  topic_prefix: mesh
  group: 0x0001
metrics:
  listen: ":9108"
influx:
  url: http://localhost:8086
  org: meshsense
  bucket: sensors
heartbeat:
  interval: 10
`

var embeddedConfigs = map[string][]byte{
	"sht30-node":    []byte(cfgNode),
	"sht30-gateway": []byte(cfgGateway),
}
