package aplic

// Domain register map, byte offsets within one domain window. All registers
// are 32-bit.
const (
	offDomaincfg    = 0x0000
	offSourcecfg    = 0x0004 // sourcecfg[1]; source i at offSourcecfg+4*(i-1)
	offReadonly0    = 0x1000 // reserved block, reads zero
	offMmsiaddrcfg  = 0x1BC0
	offMmsiaddrcfgh = 0x1BC4
	offSmsiaddrcfg  = 0x1BC8
	offSmsiaddrcfgh = 0x1BCC
	offSetip        = 0x1C00 // setip[0..31]
	offSetipnum     = 0x1CDC
	offInClrip      = 0x1D00 // in_clrip[0..31]
	offClripnum     = 0x1DDC
	offSetie        = 0x1E00 // setie[0..31]
	offSetienum     = 0x1EDC
	offClrie        = 0x1F00 // clrie[0..31]
	offClrienum     = 0x1FDC
	offSetipnumLE   = 0x2000
	offSetipnumBE   = 0x2004
	offGenmsi       = 0x3000
	offTargets      = 0x3004 // targets[1]; source i at offTargets+4*(i-1)
)

// DomainWindowSize is the size of one domain's register window. The
// supervisor domain of a controller sits at this offset above the machine
// domain.
const DomainWindowSize = 0x4000

// MaxSources is the architectural limit on interrupt source indices; index 0
// is reserved.
const MaxSources = 1023

const bitmapWords = 32 // 32-bit words backing the setip/setie windows

// domaincfg fields. The high byte is a fixed implementation tag that reads
// back regardless of what was written.
const (
	domaincfgBE  = 1 << 0
	domaincfgDM  = 1 << 2
	domaincfgIE  = 1 << 8
	domaincfgTag = 0x80 << 24
)

// sourcecfg fields. With D set the low bits name the child domain the source
// is delegated to; otherwise they hold the WARL source mode.
const (
	sourcecfgD         = 1 << 10
	sourcecfgChildMask = 0x3ff
	sourcecfgSMMask    = 0x7
)

// msiaddrcfg lock bit. The MSI directory geometry is fixed by platform
// configuration, so the machine domain exposes only the lock.
const msiaddrcfghL = 1 << 31

// targets fields.
const (
	targetHartShift  = 18
	targetHartMask   = 0x3fff
	targetGuestShift = 12
	targetGuestMask  = 0x3f
	targetEIIDMask   = 0x7ff
	targetPrioMask   = 0xff

	// Writable bits per delivery mode. Bit 11 is reserved-zero in MSI
	// mode; direct mode keeps only the hart index and priority.
	targetMSIWriteMask    = 0xfffff7ff
	targetDirectWriteMask = 0xfffc00ff
)

// genmsi fields: hart index in bits 31:18, EIID in bits 10:0. The register
// stores and reads back the raw written word.
const (
	genmsiHartShift = 18
	genmsiHartMask  = 0x3fff
	genmsiEIIDMask  = 0x7ff
)
