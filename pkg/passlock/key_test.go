package passlock

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestNewKeyGenerator(t *testing.T) {
	gen, err := NewKeyGenerator()
	assert.NoError(t, err)
	assert.NotNil(t, gen)
	assert.Equal(t, uint8(PBKDF2), gen.algorithm)
	assert.Equal(t, uint8(HashSHA1), gen.hash)
	assert.Equal(t, DefaultIterations, gen.iterations)
	assert.Equal(t, AES256KeySize, gen.aesKeySize)

	mk, err := gen.GenerateKey([]byte("a test password"))
	assert.NoError(t, err)
	assert.Len(t, mk.Key, int(gen.aesKeySize))
	assert.Len(t, mk.Salt, int(gen.aesKeySize))
}

func TestNewKeyGenerator_Custom(t *testing.T) {
	gen, err := NewKeyGenerator(
		SetIterations(2),
		SetLongDelayIterations(),
		SetShortDelayIterations(),
		SetCPUCost(DefaultCpuCost),
		SetRelativeBlockSize(DefaultRelBlockSize),
		SetAES256KeySize(),
	)
	assert.NoError(t, err)
	assert.NotNil(t, gen)
	assert.Equal(t, Scrypt, gen.Algorithm())
	assert.Equal(t, DefaultInteractiveIterations, gen.iterations)
	assert.Equal(t, DefaultCpuCost, gen.cpuCost)
	assert.Equal(t, AES256KeySize, gen.aesKeySize)
	assert.Equal(t, DefaultRelBlockSize, gen.relativeBlockSize)
}

func TestNewKeyGenerator_Neg(t *testing.T) {
	tests := map[string][]GeneratorOpt{
		"PBKDF2 below minimum":  {SetIterations(MinIterations - 1)},
		"Scrypt not power of 2": {UseScrypt(), SetIterations(1000)},
		"Iterations too small":  {SetIterations(1)},
		"Unknown hash":          {SetHash(Hash(42))},
		"Unknown algorithm":     {UseAlgorithm(Algorithm(42))},
		"CPU cost too low":      {SetCPUCost(0)},
		"Block size too low":    {SetRelativeBlockSize(DefaultRelBlockSize - 1)},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewKeyGenerator(opts...)
			assert.Error(t, err)
		})
	}
}

func TestKeyGenerator_Derive(t *testing.T) {
	var (
		pass = Passphrase("correct-horse")
		salt = Salt(bytes.Repeat([]byte{0x5a}, int(AES256KeySize)))
	)
	gen, err := NewKeyGenerator()
	require.NoError(t, err)

	a, err := gen.Derive(pass, salt)
	require.NoError(t, err)
	b, err := gen.Derive(pass, salt)
	require.NoError(t, err)
	assert.Equal(t, a.Key, b.Key, "Derivation must be deterministic")
	assert.Equal(t, salt, a.Salt)

	expected := pbkdf2.Key(pass, salt, int(DefaultIterations), int(AES256KeySize), sha1.New)
	assert.Equal(t, Key(expected), a.Key)

	other, err := gen.Derive(Passphrase("wrong-horse"), salt)
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, other.Key)

	otherSalt := bytes.Repeat([]byte{0xa5}, int(AES256KeySize))
	salted, err := gen.Derive(pass, otherSalt)
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, salted.Key)

	salt[0] = 0
	assert.NotEqual(t, salt, a.Salt, "Derived key must own its salt")
}

func TestKeyGenerator_Derive_Neg(t *testing.T) {
	gen, err := NewKeyGenerator()
	require.NoError(t, err)

	_, err = gen.Derive(nil, Salt("salt"))
	assert.ErrorIs(t, err, ErrEmptyPassPhrase)
	_, err = gen.Derive(Passphrase("pass"), nil)
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = gen.GenerateKey(nil)
	assert.ErrorIs(t, err, ErrEmptyPassPhrase)
}

func TestKeyGenerator_Scrypt(t *testing.T) {
	gen, err := NewKeyGenerator(UseScrypt(), SetIterations(1<<10), SetAES128KeySize())
	require.NoError(t, err)

	mk, err := gen.GenerateKey(Passphrase("a test password"))
	require.NoError(t, err)
	assert.Len(t, mk.Key, int(AES128KeySize))

	again, err := gen.Derive(Passphrase("a test password"), mk.Salt)
	require.NoError(t, err)
	assert.Equal(t, mk.Key, again.Key)
}

func TestDeriveMasterKey(t *testing.T) {
	salt := Salt(bytes.Repeat([]byte{1}, 32))
	mk, err := DeriveMasterKey(Passphrase("password"), salt, 10000, 256)
	require.NoError(t, err)
	assert.Len(t, mk.Key, 32)

	mk128, err := DeriveMasterKey(Passphrase("password"), salt, 10000, 128)
	require.NoError(t, err)
	assert.Len(t, mk128.Key, 16)
	assert.Equal(t, mk.Key[:16], mk128.Key, "PBKDF2 output prefix is stable across lengths")

	_, err = DeriveMasterKey(Passphrase("password"), salt, 10000, 512)
	assert.ErrorIs(t, err, ErrKeyDerivation)
	_, err = DeriveMasterKey(Passphrase("password"), salt, 100, 256)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestMasterKey_Wipe(t *testing.T) {
	gen, err := NewKeyGenerator()
	require.NoError(t, err)
	mk, err := gen.GenerateKey(Passphrase("a test password"))
	require.NoError(t, err)

	key := mk.Key
	salt := mk.Salt
	mk.Wipe()
	assert.True(t, mk.IsZero())
	assert.Equal(t, make([]byte, len(key)), []byte(key))
	assert.Equal(t, make([]byte, len(salt)), []byte(salt))

	var nilKey *MasterKey
	assert.NotPanics(t, nilKey.Wipe)
}

func TestKeyGenerator_mapper(t *testing.T) {
	var (
		buf bytes.Buffer
	)
	gen, err := NewKeyGenerator(SetShortDelayIterations())
	assert.NoError(t, err)
	assert.NotNil(t, gen)

	assert.NoError(t, gen.mapper().Write(&buf, binary.BigEndian))
	updated, err := NewKeyGenerator(
		SetIterations(1<<14),
		SetHash(HashSHA512),
		SetCPUCost(4),
		SetRelativeBlockSize(128),
		SetAES128KeySize(),
	)
	assert.NoError(t, err)
	assert.NoError(t, updated.mapper().Read(&buf, binary.BigEndian))
	assert.Equal(t, uint8(Scrypt), updated.algorithm)
	assert.Equal(t, DefaultInteractiveIterations, updated.iterations)
	assert.Equal(t, DefaultCpuCost, updated.cpuCost)
	assert.Equal(t, DefaultRelBlockSize, updated.relativeBlockSize)
	assert.Equal(t, AES256KeySize, updated.aesKeySize)
}

func TestKeyGenerator_MarshalBinary(t *testing.T) {
	gen, err := NewKeyGenerator(SetIterations(20000), SetHash(HashSHA256))
	require.NoError(t, err)
	data, err := gen.MarshalBinary()
	require.NoError(t, err)

	var restored KeyGenerator
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, *gen, restored)

	assert.Error(t, restored.UnmarshalBinary(data[:3]))
	assert.Equal(t, *gen, restored, "Failed unmarshal must not modify the generator")
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("SCRYPT")
	assert.NoError(t, err)
	assert.Equal(t, Scrypt, alg)
	alg, err = ParseAlgorithm("")
	assert.NoError(t, err)
	assert.Equal(t, PBKDF2, alg)
	_, err = ParseAlgorithm("bcrypt")
	assert.ErrorIs(t, err, ErrKeyDerivation)
	assert.Equal(t, "pbkdf2", PBKDF2.String())
}
