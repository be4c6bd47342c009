package main

import (
	"flag"
	"log"
	"math"
	"time"

	"chime"
)

func main() {
	device := flag.String("device", "", "output device name (default device if empty)")
	freq := flag.Float64("freq", 440, "tone frequency in Hz")
	dur := flag.Duration("dur", 2*time.Second, "playback duration")
	flag.Parse()

	dev, err := chime.OpenDevice(*device)
	if err != nil {
		log.Fatalln(err)
	}
	defer dev.Close()

	ctx, err := chime.NewContext(dev, nil)
	if err != nil {
		log.Fatalln(err)
	}
	defer ctx.Destroy()
	chime.MakeContextCurrent(ctx)

	rate, err := dev.GetInteger(chime.AttrFrequency)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("playing %.0f Hz on %q at %d Hz", *freq, dev.Name(), rate)

	samples := make([]float32, rate)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi**freq*float64(i)/float64(rate)))
	}
	buf, err := chime.NewBuffer(samples, 1, rate)
	if err != nil {
		log.Fatalln(err)
	}

	src, err := ctx.NewSource()
	if err != nil {
		log.Fatalln(err)
	}
	src.SetBuffer(buf)
	src.SetLooping(true)
	if err := src.Play(); err != nil {
		log.Fatalln(err)
	}

	time.Sleep(*dur)
	src.Stop()

	if code := chime.LastError(dev); code != chime.ErrNone {
		log.Fatalln("device error:", code)
	}
}
