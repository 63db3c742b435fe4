package passlock

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/awnumar/memguard"
	bin "github.com/saylorsolutions/binmap"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	DefaultIterations            uint64 = 10000
	MinIterations                uint64 = 10000
	DefaultLargeIterations       uint64 = 1 << 20
	DefaultInteractiveIterations uint64 = 1 << 17
	DefaultRelBlockSize          uint8  = 8
	DefaultCpuCost               uint8  = 1
	AES256KeySize                uint8  = 256 / 8
	AES128KeySize                uint8  = 128 / 8
)

var (
	ErrEmptyPassPhrase = errors.New("cannot use an empty passphrase")
	ErrInvalidData     = errors.New("unable to use input data")
	ErrKeyDerivation   = errors.New("key derivation unavailable")
)

// Algorithm selects the password-based key derivation function.
type Algorithm uint8

const (
	PBKDF2 Algorithm = iota + 1
	Scrypt
)

func (a Algorithm) String() string {
	switch a {
	case PBKDF2:
		return "pbkdf2"
	case Scrypt:
		return "scrypt"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm accepts the names returned by Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pbkdf2", "":
		return PBKDF2, nil
	case "scrypt":
		return Scrypt, nil
	default:
		return 0, fmt.Errorf("%w: unknown algorithm '%s'", ErrKeyDerivation, name)
	}
}

// Hash selects the HMAC hash used with PBKDF2.
type Hash uint8

const (
	HashSHA1 Hash = iota + 1
	HashSHA256
	HashSHA512
)

func (h Hash) newFunc() (func() hash.Hash, error) {
	switch h {
	case HashSHA1:
		return sha1.New, nil
	case HashSHA256:
		return sha256.New, nil
	case HashSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: unknown PBKDF2 hash %d", ErrKeyDerivation, uint8(h))
	}
}

// Key is an AES key derived from a passphrase.
type Key []byte

// Salt is a slice of secure random bytes that is mixed with a Passphrase to generate a Key.
type Salt []byte

// Passphrase is a human-readable secret used to generate a Key.
type Passphrase []byte

// MasterKey is a derived Key together with the Salt it was derived with.
type MasterKey struct {
	Key  Key
	Salt Salt
}

// IsZero reports whether the MasterKey holds no key material.
func (k MasterKey) IsZero() bool {
	return len(k.Key) == 0
}

// Wipe overwrites the key and salt with zeros and releases them.
func (k *MasterKey) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.Key)
	Wipe(k.Salt)
	k.Key = nil
	k.Salt = nil
}

// Wipe overwrites the given bytes with zeros.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}

type KeyGenerator struct {
	algorithm         uint8
	hash              uint8
	iterations        uint64
	relativeBlockSize uint8
	cpuCost           uint8
	aesKeySize        uint8
}

func (g *KeyGenerator) mapper() bin.Mapper {
	return bin.MapSequence(
		bin.Byte(&g.algorithm),
		bin.Byte(&g.hash),
		bin.Int(&g.iterations),
		bin.Byte(&g.relativeBlockSize),
		bin.Byte(&g.cpuCost),
		bin.Byte(&g.aesKeySize),
	)
}

type GeneratorOpt = func(*KeyGenerator) error

func SetAES256KeySize() GeneratorOpt {
	return func(gen *KeyGenerator) error {
		gen.aesKeySize = AES256KeySize
		return nil
	}
}

func SetAES128KeySize() GeneratorOpt {
	return func(gen *KeyGenerator) error {
		gen.aesKeySize = AES128KeySize
		return nil
	}
}

// UseAlgorithm selects the derivation function.
// Switching to Scrypt resets the iteration count to DefaultInteractiveIterations, and switching to PBKDF2 resets it to DefaultIterations.
func UseAlgorithm(alg Algorithm) GeneratorOpt {
	return func(gen *KeyGenerator) error {
		switch alg {
		case PBKDF2:
			gen.iterations = DefaultIterations
		case Scrypt:
			gen.iterations = DefaultInteractiveIterations
		default:
			return fmt.Errorf("%w: unknown algorithm %d", ErrKeyDerivation, uint8(alg))
		}
		gen.algorithm = uint8(alg)
		return nil
	}
}

// UseScrypt is shorthand for UseAlgorithm(Scrypt).
func UseScrypt() GeneratorOpt {
	return UseAlgorithm(Scrypt)
}

// SetHash sets the HMAC hash used with PBKDF2. It has no effect for scrypt.
func SetHash(h Hash) GeneratorOpt {
	return func(gen *KeyGenerator) error {
		if _, err := h.newFunc(); err != nil {
			return err
		}
		gen.hash = uint8(h)
		return nil
	}
}

// SetLongDelayIterations switches to scrypt with a higher cost. This is sufficient for infrequent key derivation, or cases where the key will be cached for long periods of time.
func SetLongDelayIterations() GeneratorOpt {
	return func(gen *KeyGenerator) error {
		gen.algorithm = uint8(Scrypt)
		gen.iterations = DefaultLargeIterations
		return nil
	}
}

// SetShortDelayIterations switches to scrypt with a lower cost. This is appropriate for situations where a shorter delay is desired because of frequent key derivations.
// It's recommended to use longer passwords with this approach.
func SetShortDelayIterations() GeneratorOpt {
	return func(gen *KeyGenerator) error {
		gen.algorithm = uint8(Scrypt)
		gen.iterations = DefaultInteractiveIterations
		return nil
	}
}

// SetIterations allows the caller to customize the iteration count.
// For PBKDF2 this must be at least MinIterations, and for scrypt it must be a power of 2.
// These constraints are checked once all options are applied, so option order doesn't matter.
func SetIterations(iterations uint64) GeneratorOpt {
	return func(gen *KeyGenerator) error {
		if iterations <= 1 {
			return errors.New("iterations cannot be <= 1")
		}
		gen.iterations = iterations
		return nil
	}
}

// SetCPUCost sets the scrypt parallelism factor from the default of 1.
// Only use this option if you know what you're doing.
func SetCPUCost(cost uint8) GeneratorOpt {
	return func(gen *KeyGenerator) error {
		if cost < DefaultCpuCost {
			return errors.New("cpu cost must be at least 1")
		}
		gen.cpuCost = cost
		return nil
	}
}

// SetRelativeBlockSize sets the scrypt relative block size.
// Only use this option if you know what you're doing.
func SetRelativeBlockSize(size uint8) GeneratorOpt {
	return func(gen *KeyGenerator) error {
		if size < DefaultRelBlockSize {
			return errors.New("relative block size must be at least 8")
		}
		gen.relativeBlockSize = size
		return nil
	}
}

// NewKeyGenerator creates a new KeyGenerator using the options provided as zero or more GeneratorOpt.
// By default, the generator derives an AES256KeySize key with PBKDF2-HMAC-SHA1 and DefaultIterations.
func NewKeyGenerator(opts ...GeneratorOpt) (*KeyGenerator, error) {
	gen := &KeyGenerator{
		algorithm:         uint8(PBKDF2),
		hash:              uint8(HashSHA1),
		iterations:        DefaultIterations,
		relativeBlockSize: DefaultRelBlockSize,
		cpuCost:           DefaultCpuCost,
		aesKeySize:        AES256KeySize,
	}

	for _, opt := range opts {
		if err := opt(gen); err != nil {
			return nil, err
		}
	}
	if err := gen.validate(); err != nil {
		return nil, err
	}
	return gen, nil
}

func (g *KeyGenerator) validate() error {
	switch Algorithm(g.algorithm) {
	case PBKDF2:
		if g.iterations < MinIterations {
			return fmt.Errorf("%w: PBKDF2 iterations must be at least %d", ErrKeyDerivation, MinIterations)
		}
		if _, err := Hash(g.hash).newFunc(); err != nil {
			return err
		}
	case Scrypt:
		if g.iterations <= 1 || g.iterations&(g.iterations-1) != 0 {
			return fmt.Errorf("%w: scrypt iterations must be a power of 2", ErrKeyDerivation)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %d", ErrKeyDerivation, g.algorithm)
	}
	if g.aesKeySize != AES256KeySize && g.aesKeySize != AES128KeySize {
		return fmt.Errorf("%w: unsupported key size %d", ErrKeyDerivation, g.aesKeySize)
	}
	return nil
}

func (g *KeyGenerator) Algorithm() Algorithm {
	return Algorithm(g.algorithm)
}

func (g *KeyGenerator) Iterations() uint64 {
	return g.iterations
}

// KeySize returns the length of derived keys in bytes.
func (g *KeyGenerator) KeySize() int {
	return int(g.aesKeySize)
}

// GenerateSalt creates a new random Salt with the same length as the generated key.
func (g *KeyGenerator) GenerateSalt() (Salt, error) {
	salt := make(Salt, g.aesKeySize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: failed to read random salt: %v", ErrKeyDerivation, err)
	}
	return salt, nil
}

// GenerateKey will generate a new Salt, and derive a MasterKey from it using the configuration of the KeyGenerator.
func (g *KeyGenerator) GenerateKey(pass Passphrase) (MasterKey, error) {
	if len(pass) == 0 {
		return MasterKey{}, ErrEmptyPassPhrase
	}
	salt, err := g.GenerateSalt()
	if err != nil {
		return MasterKey{}, err
	}
	return g.Derive(pass, salt)
}

// Derive recovers a MasterKey from the given passphrase and salt.
// The returned MasterKey holds its own copy of the salt.
// This doesn't ensure that the given passphrase is the *correct* passphrase.
func (g *KeyGenerator) Derive(pass Passphrase, salt Salt) (MasterKey, error) {
	if len(pass) == 0 {
		return MasterKey{}, ErrEmptyPassPhrase
	}
	if len(salt) == 0 {
		return MasterKey{}, fmt.Errorf("%w: empty salt", ErrInvalidData)
	}
	var (
		key []byte
		err error
	)
	switch Algorithm(g.algorithm) {
	case PBKDF2:
		h, herr := Hash(g.hash).newFunc()
		if herr != nil {
			return MasterKey{}, herr
		}
		key = pbkdf2.Key(pass, salt, int(g.iterations), int(g.aesKeySize), h)
	case Scrypt:
		key, err = scrypt.Key(pass, salt, int(g.iterations), int(g.relativeBlockSize), int(g.cpuCost), int(g.aesKeySize))
		if err != nil {
			return MasterKey{}, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
		}
	default:
		return MasterKey{}, fmt.Errorf("%w: unknown algorithm %d", ErrKeyDerivation, g.algorithm)
	}
	return MasterKey{
		Key:  key,
		Salt: bytes.Clone(salt),
	}, nil
}

// DeriveMasterKey derives a MasterKey with PBKDF2-HMAC-SHA1 using the given iteration count and key length in bits.
// Key lengths of 128 and 256 bits are supported.
func DeriveMasterKey(pass Passphrase, salt Salt, iterations int, keyLengthBits int) (MasterKey, error) {
	var sizeOpt GeneratorOpt
	switch keyLengthBits {
	case 256:
		sizeOpt = SetAES256KeySize()
	case 128:
		sizeOpt = SetAES128KeySize()
	default:
		return MasterKey{}, fmt.Errorf("%w: unsupported key length %d bits", ErrKeyDerivation, keyLengthBits)
	}
	if iterations <= 1 {
		return MasterKey{}, fmt.Errorf("%w: invalid iteration count %d", ErrKeyDerivation, iterations)
	}
	gen, err := NewKeyGenerator(sizeOpt, SetIterations(uint64(iterations)))
	if err != nil {
		return MasterKey{}, err
	}
	return gen.Derive(pass, salt)
}

// MarshalBinary encodes the KeyGenerator settings so the same generator can be reconstructed later.
func (g *KeyGenerator) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := g.mapper().Write(&buf, binary.BigEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores KeyGenerator settings written by MarshalBinary.
func (g *KeyGenerator) UnmarshalBinary(data []byte) error {
	var restored KeyGenerator
	if err := restored.mapper().Read(bytes.NewReader(data), binary.BigEndian); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := restored.validate(); err != nil {
		return err
	}
	*g = restored
	return nil
}
