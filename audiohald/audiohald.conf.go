package main

const (
	defaultConfigFileContent = `
# root directory for audiohald state
root = {{ .Root }}

# lock file guarding the audio hardware. Only one daemon may drive a card.
lockfile = {{ .LockFile }}

# id of the audio device, reported in logs and metrics
deviceid = {{ .DeviceID }}

# nice value of the process while driving the hardware. 0 keeps the current
# priority.
audiopriority = {{ .AudioPriority }}

# logging and debug
[log]

# logfile contains log file name location
logfile = {{ .LogFile }}

# how verbose to be. Per subsystem levels are set with SUBSYS=level, for
# example info,RTE=debug,MIXR=trace. Subsystems: HALD, HAL, RTE, STRM, OFLD,
# VOIC, FCTY, MIXR, XPRT, RPCS and STAT.
debuglevel = {{ .DebugLevel }}

# go profiler address
# profiler = 127.0.0.1:6060

[hal]

# mixer paths of the card. A default file is created when missing.
mixerpaths = {{ .MixerPaths }}

# reload the mixer paths file when it changes
livereload = no

# control values restored across restarts
cardstate = {{ .CardStateFile }}

# whether the device has an earpiece
supportreceiver = yes

# whether FM radio is rendered by a bluetooth sink
fmviaa2dp = no

# delay of the mute burst that hides VoIP reconfigurations
mutewindow = {{ .MuteWindow }}

# number of modem volume steps
volumesteps = {{ .VolumeSteps }}

[rpc]

# comma separated list of addresses of the websocket API
listen = {{ join .RPCListen "," }}

# comma separated list of bearer tokens accepted by the API. An empty list
# authorizes every client.
# tokens =

# idle time after which a silent client is disconnected
idletimeout = {{ .RPCIdleTimeout }}

[metrics]

# prometheus listen address
# promlisten = 127.0.0.1:9100

# interval of the stats log line. 0 disables it.
statsinterval = {{ .StatsInterval }}

[audio]

# audio driver. Empty uses the hardware of the host, nullaudio a timer paced
# device without hardware.
# driver =

# hardware device ids. Empty ids select the default devices.
# playbackdevice =
# capturedevice =

# hardware period of primary streams and number of periods buffered
period = {{ .Period }}
periods = {{ .Periods }}

# compressed buffer size of offload streams
offloadbuffersize = {{ .OffloadBufferSize }}
`
)
