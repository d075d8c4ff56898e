// Package firmware validates ESP32 application images before they are sent over the air.
//
// # Image Header
//
// Every ESP32 application image starts with a fixed header. Only the fields
// needed to decide whether a buffer is a flashable image are inspected:
//
//	byte 0     magic (0xE9)
//	byte 1     number of segments
//	byte 2     SPI flash mode (0=QIO, 1=QOUT, 2=DIO, 3=DOUT, 4=FAST_READ)
//	byte 3     high nibble: flash size, low nibble: flash frequency
//	bytes 4-7  entry point address (little-endian)
//
// The header plus the first segment header occupy 32 bytes, which is the
// minimum accepted image length.
//
// Flash size codes 0..4 map to 1MB, 2MB, 4MB, 8MB and 16MB. Flash frequency
// codes 0, 1, 2 and 15 map to 40MHz, 26MHz, 20MHz and 80MHz.
//
// # Usage
//
// Validate a buffer already in memory:
//
//	meta, err := firmware.Validate(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("flash: %s @ %s\n", meta.FlashSize, meta.FlashFreq)
//
// Load and validate a file:
//
//	img, err := firmware.Load("build/app.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes, %s\n", img.Len(), img.Metadata().FlashSize)
//
// # Error Handling
//
// Validation failures are returned as *ValidationError wrapping one of the
// sentinel errors, so callers can branch with errors.Is:
//
//	if errors.Is(err, firmware.ErrBadMagic) {
//	    // not an ESP32 image at all
//	}
//
// # Application Descriptor
//
// Images built with ESP-IDF carry an esp_app_desc_t right after the first
// segment header. ParseAppDescriptor extracts the version, project name and
// build information when it is present. Its absence is not an error.
package firmware
