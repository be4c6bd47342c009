package main

import (
	"fmt"
	"log"

	"chime"
)

func main() {
	fmt.Println("Playback devices:")
	for _, name := range chime.DeviceNames() {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("Capture devices:")
	for _, name := range chime.CaptureDeviceNames() {
		fmt.Printf("  %s\n", name)
	}

	dev, err := chime.OpenDevice("")
	if err != nil {
		log.Fatalln(err)
	}
	defer dev.Close()

	ctx, err := chime.NewContext(dev, nil)
	if err != nil {
		log.Fatalln(err)
	}
	defer ctx.Destroy()

	fmt.Printf("\nDefault device: %s\n", dev.Name())
	attrs := dev.Attributes()
	for i := 0; i+1 < len(attrs) && attrs[i] != chime.AttrNone; i += 2 {
		fmt.Printf("  attr %#04x = %d\n", attrs[i], attrs[i+1])
	}
}
